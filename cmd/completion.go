package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		os.Exit(1)
	}
}

const bashCompletion = `_passvault() {
    local cur prev words cword
    _init_completion || return

    local commands="init status ls show add set rm passwd gen check totp sync keyring compact help completion"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        ls)
            if [[ "$prev" == "-c" ]]; then
                COMPREPLY=($(compgen -W "Login BankCard Note" -- "$cur"))
            else
                COMPREPLY=($(compgen -W "-c" -- "$cur"))
            fi
            ;;
        add)
            if [[ "$prev" == "-c" ]]; then
                COMPREPLY=($(compgen -W "Login BankCard Note" -- "$cur"))
            else
                COMPREPLY=($(compgen -W "-c -t -s -f --generate" -- "$cur"))
            fi
            ;;
        show|set|rm|totp|check)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "--reveal --force --generate --kind --title --subtitle" -- "$cur"))
            else
                # Complete with record ids
                local ids
                ids=$(passvault ls 2>/dev/null | awk 'NR>1 {print $1}')
                COMPREPLY=($(compgen -W "$ids" -- "$cur"))
            fi
            ;;
        gen)
            COMPREPLY=($(compgen -W "-l --no-numbers --no-lower --no-upper --no-symbols --check" -- "$cur"))
            ;;
        sync)
            if [[ $cword -eq 2 ]]; then
                COMPREPLY=($(compgen -W "enable disable status push pull diff" -- "$cur"))
            else
                COMPREPLY=($(compgen -W "--force" -- "$cur"))
            fi
            ;;
        keyring)
            COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _passvault passvault
`

const zshCompletion = `#compdef passvault

_passvault() {
    local -a commands
    commands=(
        'init:Create a new vault'
        'status:Show the vault header'
        'ls:List records'
        'show:Show one record'
        'add:Add a record'
        'set:Change a record or one of its fields'
        'rm:Delete a record or one of its fields'
        'passwd:Change vault password'
        'gen:Generate a password'
        'check:Find common and breached passwords'
        'totp:Print one-time codes'
        'sync:Synchronize with a remote copy'
        'keyring:Manage password in OS keyring'
        'compact:Compact vault to reclaim disk space'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'passvault commands' commands
            ;;
        args)
            case "${words[2]}" in
                ls)
                    _arguments '-c[Category]:category:(Login BankCard Note)'
                    ;;
                add)
                    _arguments \
                        '-c[Category]:category:(Login BankCard Note)' \
                        '-t[Title]:title:' \
                        '-s[Subtitle]:subtitle:' \
                        '*-f[Field Label\[:Kind\]=value]:field:' \
                        '--generate[Generate missing passwords]'
                    ;;
                show)
                    _arguments '--reveal[Show sensitive values]' '1:record:_passvault_records'
                    ;;
                set)
                    _arguments \
                        '--title[New title]:title:' \
                        '--subtitle[New subtitle]:subtitle:' \
                        '--kind[Kind of a new field]:kind:' \
                        '--generate[Generate a password]' \
                        '1:record:_passvault_records'
                    ;;
                rm)
                    _arguments '--force[Delete without confirmation]' '1:record:_passvault_records'
                    ;;
                totp|check)
                    _arguments '1:record:_passvault_records'
                    ;;
                sync)
                    _values 'subcommand' enable disable status push pull diff
                    ;;
                keyring)
                    _values 'subcommand' save delete status
                    ;;
                help)
                    _describe -t commands 'passvault commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_passvault_records() {
    local -a ids
    ids=(${(f)"$(passvault ls 2>/dev/null | awk 'NR>1 {print $1}')"})
    _describe -t records 'records' ids
}

_passvault "$@"
`

const fishCompletion = `# passvault fish completions

set -l commands init status ls show add set rm passwd gen check totp sync keyring compact help completion

complete -c passvault -f

# Commands
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a init -d 'Create a new vault'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show the vault header'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a ls -d 'List records'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a show -d 'Show one record'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a add -d 'Add a record'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a set -d 'Change a record'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a rm -d 'Delete a record or field'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Change vault password'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a gen -d 'Generate a password'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a check -d 'Find weak passwords'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a totp -d 'Print one-time codes'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a sync -d 'Synchronize with a remote'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage password in OS keyring'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Compact vault'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# record ids
complete -c passvault -n "__fish_seen_subcommand_from show set rm totp check" -a "(passvault ls 2>/dev/null | awk 'NR>1 {print \$1}')"

# flags
complete -c passvault -n "__fish_seen_subcommand_from ls add" -s c -a "Login BankCard Note" -d 'Category'
complete -c passvault -n "__fish_seen_subcommand_from add" -s t -d 'Title'
complete -c passvault -n "__fish_seen_subcommand_from add" -s s -d 'Subtitle'
complete -c passvault -n "__fish_seen_subcommand_from add" -s f -d 'Field Label[:Kind]=value'
complete -c passvault -n "__fish_seen_subcommand_from add set" -l generate -d 'Generate passwords'
complete -c passvault -n "__fish_seen_subcommand_from show" -l reveal -d 'Show sensitive values'
complete -c passvault -n "__fish_seen_subcommand_from rm" -l force -d 'Delete without confirmation'
complete -c passvault -n "__fish_seen_subcommand_from gen" -s l -d 'Length'
complete -c passvault -n "__fish_seen_subcommand_from gen" -l check -d 'Check the generated password'

# sync subcommands
complete -c passvault -n "__fish_seen_subcommand_from sync" -a "enable disable status push pull diff"
complete -c passvault -n "__fish_seen_subcommand_from push pull" -l force -d 'Overwrite a newer copy'

# keyring subcommands
complete -c passvault -n "__fish_seen_subcommand_from keyring" -a "save delete status"

# help completions
complete -c passvault -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c passvault -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
