package main

import (
	"fmt"
	"os"
)

func printUsage() {
	fmt.Println("passvault - Local encrypted password vault")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  passvault <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init        Create a new vault")
	fmt.Println("  status      Show the vault header (no password needed)")
	fmt.Println("  ls          List records")
	fmt.Println("  show        Show one record")
	fmt.Println("  add         Add a record")
	fmt.Println("  set         Change a record or one of its fields")
	fmt.Println("  rm          Delete a record or one of its fields")
	fmt.Println("  passwd      Change vault password")
	fmt.Println("  gen         Generate a password")
	fmt.Println("  check       Find common and breached passwords")
	fmt.Println("  totp        Print one-time codes")
	fmt.Println("  sync        Synchronize with a remote copy over SFTP or S3")
	fmt.Println("  keyring     Manage password in OS keyring")
	fmt.Println("  compact     Compact vault to reclaim disk space")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  passvault init                               # Create new vault")
	fmt.Println("  passvault add -t GitHub --generate           # Add a login with a new password")
	fmt.Println("  passvault show --reveal 3                    # Show record 3 unmasked")
	fmt.Println("  passvault sync push                          # Upload the vault")
	fmt.Println()
	fmt.Println("Configuration is read from ~/.passvault/config.yaml and PASSVAULT_* variables.")
	fmt.Println("Use 'passvault help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "init":
		fmt.Println("passvault init")
		fmt.Println()
		fmt.Println("Creates the vault file (default ~/.passvault/database.passvault).")
		fmt.Println("Prompts for a password that will be used for encryption,")
		fmt.Println("or reads it from PASSVAULT_PASSWORD.")
		fmt.Println("The password cannot be recovered - you must remember it.")
	case "status":
		fmt.Println("passvault status")
		fmt.Println()
		fmt.Println("Shows the unencrypted vault header: format, vault id, size,")
		fmt.Println("creation and modification time and key derivation rounds.")
		fmt.Println()
		fmt.Println("Does not require a password.")
	case "ls":
		fmt.Println("passvault ls [-c <category>] [query]")
		fmt.Println()
		fmt.Println("Lists records, optionally only one category or those whose")
		fmt.Println("title or subtitle contains query.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  passvault ls")
		fmt.Println("  passvault ls -c BankCard")
		fmt.Println("  passvault ls mail")
	case "show":
		fmt.Println("passvault show [--reveal] <id>")
		fmt.Println()
		fmt.Println("Shows a record and its fields. Passwords, secrets and card numbers")
		fmt.Println("are masked unless --reveal is given. One-time code fields show the")
		fmt.Println("current code.")
	case "add":
		fmt.Println("passvault add [-c <category>] -t <title> [-s <subtitle>] [-f Label[:Kind]=value]... [--generate]")
		fmt.Println()
		fmt.Println("Adds a record. Login, BankCard and Note records get their template")
		fmt.Println("fields; values not given with -f are prompted for. Other -f fields")
		fmt.Println("are added as optional fields, of kind Text unless a kind is given.")
		fmt.Println()
		fmt.Println("Kinds: Number Text LongText SensitiveText Date Password TOTPSecret")
		fmt.Println("       Url Email PhoneNumber BankCardNumber")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -c          Category (default Login)")
		fmt.Println("  --generate  Generate passwords that are not given")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  passvault add -t GitHub -f Website=https://github.com -f User=me --generate")
		fmt.Println("  passvault add -c Note -t Wifi -f Note='door code 1234'")
		fmt.Println("  passvault add -t Mail -f 2FA:TOTPSecret=JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP")
	case "set":
		fmt.Println("passvault set [--title T] [--subtitle S] [--kind K] [--generate] <id> [<label> [value]]")
		fmt.Println()
		fmt.Println("Changes the title or subtitle of a record or the value of one field.")
		fmt.Println("A label the record does not have adds an optional field.")
		fmt.Println("When value is left out it is prompted for.")
	case "rm":
		fmt.Println("passvault rm [--force] <id> [label]")
		fmt.Println()
		fmt.Println("Deletes a record with all its fields or, with a label, one optional")
		fmt.Println("field. Template fields cannot be removed.")
	case "passwd":
		fmt.Println("passvault passwd")
		fmt.Println()
		fmt.Println("Changes the vault password.")
		fmt.Println("Requires both the current and new passwords.")
		fmt.Println("Re-encrypts every record with the new password.")
	case "gen":
		fmt.Println("passvault gen [-l N] [--no-numbers] [--no-lower] [--no-upper] [--no-symbols] [--check]")
		fmt.Println()
		fmt.Println("Prints a random password with every selected character class.")
		fmt.Println("--check also looks it up in common and breached password lists.")
	case "check":
		fmt.Println("passvault check [-p] [id]")
		fmt.Println()
		fmt.Println("Checks stored passwords against a list of common passwords and the")
		fmt.Println("Have I Been Pwned range API. Only the first five characters of the")
		fmt.Println("SHA-1 hash leave the machine. Exits with status 2 when problems are found.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -p   Check a password typed at the prompt instead")
	case "totp":
		fmt.Println("passvault totp <id> [label]")
		fmt.Println()
		fmt.Println("Prints the current one-time codes of a record.")
	case "sync":
		fmt.Println("passvault sync <enable|disable|status|push|pull|diff> [--force]")
		fmt.Println()
		fmt.Println("Keeps a copy of the vault on an SFTP server or in an S3 bucket.")
		fmt.Println("The previous copy is kept with a .backup suffix on each transfer.")
		fmt.Println()
		fmt.Println("  enable <address> <user>  Verify and store the remote credentials")
		fmt.Println("                           (host[:port] or s3://bucket[/prefix])")
		fmt.Println("  disable                  Forget the remote credentials")
		fmt.Println("  status                   Show sync state and modification times")
		fmt.Println("  push                     Upload the local vault")
		fmt.Println("  pull                     Replace the local vault with the remote one")
		fmt.Println("  diff                     Compare local and remote records")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  --force   Overwrite a newer copy without asking")
	case "keyring":
		fmt.Println("passvault keyring <save|delete|status>")
		fmt.Println()
		fmt.Println("Stores the vault password in the OS keyring so it is not prompted for.")
	case "compact":
		fmt.Println("passvault compact")
		fmt.Println()
		fmt.Println("Compacts the vault database to reclaim unused disk space.")
		fmt.Println("This is automatically done after 'rm' and 'passwd' commands,")
		fmt.Println("but can be run manually if needed.")
	case "completion":
		fmt.Println("passvault completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(passvault completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(passvault completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  passvault completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
