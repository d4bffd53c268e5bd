package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/illarion/passvault/internal/model"
)

const testIters = 1000

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func openTest(t *testing.T, path, pass string, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithIterations(testIters)}, opts...)
	s, err := Open(path, []byte(pass), opts...)
	if err != nil {
		t.Fatalf("Failed to open vault: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return openTest(t, filepath.Join(t.TempDir(), "vault.db"), "pw1", opts...)
}

func mustCard(t *testing.T, n string) *model.BankCardNumber {
	t.Helper()
	v, err := model.NewBankCardNumber(n)
	if err != nil {
		t.Fatalf("Failed to build card: %v", err)
	}
	return v
}

func TestOpenCreatesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vault.db")

	s, err := Open(path, []byte("pw1"), WithIterations(testIters))
	if err != nil {
		t.Fatalf("Failed to create vault: %v", err)
	}
	if err := s.SaveSetting("k", "v"); err != nil {
		t.Fatalf("Failed to save setting: %v", err)
	}
	s.Close()

	if _, err := Open(path, []byte("pw2")); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("Open with wrong passphrase: got %v, want ErrWrongPassword", err)
	}

	s = openTest(t, path, "pw1")
	v, err := s.GetSetting("k")
	if err != nil {
		t.Fatalf("Failed to read setting: %v", err)
	}
	if v.Expose() != "v" {
		t.Errorf("Setting = %q, want %q", v.Expose(), "v")
	}
}

func TestOpenEmptyPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	if _, err := Open(path, nil); !errors.Is(err, ErrEmptyPassphrase) {
		t.Fatalf("got %v, want ErrEmptyPassphrase", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Vault file created for empty passphrase")
	}
}

func TestOpenForeignFileLooksLikeWrongPassword(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.db")
	if err := os.WriteFile(garbage, []byte("this is not a vault, just some text that is long enough"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(garbage, []byte("pw1")); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("garbage file: got %v, want ErrWrongPassword", err)
	}

	// a valid bbolt file that is not a vault
	other := filepath.Join(dir, "other.db")
	db, err := bolt.Open(other, 0600, nil)
	if err != nil {
		t.Fatal(err)
	}
	db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucket([]byte("blobs"))
		return err
	})
	db.Close()
	if _, err := Open(other, []byte("pw1")); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("foreign bbolt file: got %v, want ErrWrongPassword", err)
	}
}

func TestBankCardScenario(t *testing.T) {
	s := newTestStore(t)

	rec := model.NewRecord("Bank", "", model.CategoryBankCard)
	if err := s.SaveRecord(rec); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}
	if rec.ID == 0 {
		t.Fatal("Record id not assigned")
	}

	c := model.NewContent("Card number", 1, true, mustCard(t, "4111111111111111"))
	if err := s.SaveContent(rec.ID, c); err != nil {
		t.Fatalf("Failed to save content: %v", err)
	}
	if c.ID == 0 {
		t.Fatal("Content id not assigned")
	}

	if _, err := model.NewBankCardNumber("4111111111111112"); err == nil {
		t.Fatal("Expected validation error for bad Luhn")
	} else {
		var verr *model.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("Expected ValidationError, got %T", err)
		}
	}

	got, recordID, err := s.GetContent(c.ID)
	if err != nil {
		t.Fatalf("Failed to get content: %v", err)
	}
	if recordID != rec.ID || got.Value.PlainString() != "4111111111111111" {
		t.Errorf("GetContent = (%v, %d)", got.Value.PlainString(), recordID)
	}
}

func TestSaveRecordTimestamps(t *testing.T) {
	clock := &testClock{t: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	s := newTestStore(t, WithClock(clock.now))

	rec := model.NewRecord("Mail", "alice", model.CategoryLogin)
	if err := s.SaveRecord(rec); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}
	created := rec.Created

	clock.t = clock.t.Add(time.Hour)
	rec.Title = "Mail (work)"
	rec.Created = time.Time{}
	if err := s.SaveRecord(rec); err != nil {
		t.Fatalf("Failed to update record: %v", err)
	}

	got, err := s.GetRecord(rec.ID)
	if err != nil {
		t.Fatalf("Failed to load record: %v", err)
	}
	if !got.Created.Equal(created) {
		t.Errorf("Created changed: %v -> %v", created, got.Created)
	}
	if !got.LastModified.Equal(clock.t) {
		t.Errorf("LastModified = %v, want %v", got.LastModified, clock.t)
	}
	if got.Title != "Mail (work)" {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestSaveRecordUnknownID(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveRecord(&model.Record{ID: 42, Title: "ghost"})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("got %v, want ErrRecordNotFound", err)
	}
}

func TestSaveContentRequiresRecord(t *testing.T) {
	s := newTestStore(t)
	c := model.NewContent("User", 1, false, model.NewText("alice"))
	if err := s.SaveContent(7, c); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("got %v, want ErrRecordNotFound", err)
	}
	if c.ID != 0 {
		t.Error("Content id assigned on failed save")
	}
}

func TestSaveRecordContentAtomic(t *testing.T) {
	clock := &testClock{t: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	s := newTestStore(t, WithClock(clock.now))
	rec := seedRecord(t, s, 1)
	before := rec.LastModified

	clock.t = clock.t.Add(time.Hour)
	rec.Title = "renamed"
	added := model.NewContent("new", 2, false, model.NewText("x"))
	stale := model.NewContent("stale", 3, false, model.NewText("y"))
	stale.ID = 999
	err := s.SaveRecordContent(rec, []*model.Content{added, stale})
	if !errors.Is(err, ErrContentNotFound) {
		t.Fatalf("got %v, want ErrContentNotFound", err)
	}
	if added.ID != 0 {
		t.Error("Content id assigned on failed save")
	}

	got, err := s.GetRecord(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "seed" || !got.LastModified.Equal(before) {
		t.Errorf("Record changed by failed save: %q %v", got.Title, got.LastModified)
	}
	if all, _ := s.GetAllContentForRecord(rec.ID); len(all) != 1 {
		t.Errorf("Content rows = %d, want 1", len(all))
	}
}

func TestSaveRecordContentAssignsIDs(t *testing.T) {
	s := newTestStore(t)
	rec := model.NewRecord("Mail", "alice", model.CategoryLogin)
	user := model.NewContent("User", 1, false, model.NewText("alice"))
	pass := model.NewContent("Password", 2, true, model.NewText("hunter2"))
	if err := s.SaveRecordContent(rec, []*model.Content{user, pass}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if rec.ID == 0 || user.ID == 0 || pass.ID == 0 || user.ID == pass.ID {
		t.Fatalf("ids not assigned: record %d content %d %d", rec.ID, user.ID, pass.ID)
	}
	all, err := s.GetAllContentForRecord(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Label != "User" || all[1].Label != "Password" {
		t.Errorf("content = %+v", all)
	}
}

func TestContentOrderAndUpdate(t *testing.T) {
	s := newTestStore(t)
	rec := model.NewRecord("Site", "", model.CategoryLogin)
	if err := s.SaveRecord(rec); err != nil {
		t.Fatal(err)
	}

	url, _ := model.NewURL("https://example.com")
	contents := []*model.Content{
		model.NewContent("Password", 3, true, model.NewPassword("hunter2")),
		model.NewContent("Website", 1, true, url),
		model.NewContent("User", 2, true, model.NewText("alice")),
	}
	for _, c := range contents {
		if err := s.SaveContent(rec.ID, c); err != nil {
			t.Fatalf("Failed to save content: %v", err)
		}
	}

	contents[2].Value = model.NewText("bob")
	if err := s.SaveContent(rec.ID, contents[2]); err != nil {
		t.Fatalf("Failed to update content: %v", err)
	}

	got, err := s.GetAllContentForRecord(rec.ID)
	if err != nil {
		t.Fatalf("Failed to load content: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Got %d rows, want 3", len(got))
	}
	want := []string{"Website", "User", "Password"}
	for i, c := range got {
		if c.Label != want[i] {
			t.Errorf("row %d label = %q, want %q", i, c.Label, want[i])
		}
	}
	if got[1].Value.PlainString() != "bob" {
		t.Errorf("Updated value = %q", got[1].Value.PlainString())
	}

	pw, err := s.GetPasswordsForRecord(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(pw) != 1 || pw[0].Value.PlainString() != "hunter2" {
		t.Errorf("GetPasswordsForRecord returned %d rows", len(pw))
	}
}

func TestUnknownKindFailsClosed(t *testing.T) {
	s := newTestStore(t)
	rec := model.NewRecord("x", "", model.CategoryNote)
	if err := s.SaveRecord(rec); err != nil {
		t.Fatal(err)
	}

	err := s.update(func(tx *bolt.Tx) error {
		row := contentRow{RecordID: rec.ID, Label: "odd", Position: 1, Kind: "Hologram", Value: "x"}
		return s.putJSON(tx.Bucket(ContentBucket), ContentBucket, itob(99), row)
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetAllContentForRecord(rec.ID); !errors.Is(err, ErrCorruptRow) || !errors.Is(err, model.ErrUnknownKind) {
		t.Errorf("GetAllContentForRecord: got %v, want ErrCorruptRow wrapping ErrUnknownKind", err)
	}
	if _, _, err := s.GetContent(99); !errors.Is(err, ErrCorruptRow) {
		t.Errorf("GetContent: got %v, want ErrCorruptRow", err)
	}
}

func seedRecord(t *testing.T, s *Store, n int) *model.Record {
	t.Helper()
	rec := model.NewRecord("seed", "", model.Category("Custom"))
	if err := s.SaveRecord(rec); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= n; i++ {
		if err := s.SaveContent(rec.ID, model.NewContent("f", i, false, model.NewText("v"))); err != nil {
			t.Fatal(err)
		}
	}
	return rec
}

func TestDeleteRecordCascade(t *testing.T) {
	s := newTestStore(t)
	keep := seedRecord(t, s, 2)
	drop := seedRecord(t, s, 3)

	if err := s.DeleteRecord(drop); err != nil {
		t.Fatalf("Failed to delete record: %v", err)
	}

	left, err := s.GetAllContentForRecord(drop.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("%d content rows left for deleted record", len(left))
	}
	if _, err := s.GetRecord(drop.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Deleted record still readable: %v", err)
	}

	kept, _ := s.GetAllContentForRecord(keep.ID)
	if len(kept) != 2 {
		t.Errorf("Other record lost content: %d rows", len(kept))
	}
}

func TestDeleteRecordAtomicOnFailure(t *testing.T) {
	s := newTestStore(t)
	rec := seedRecord(t, s, 4)

	injected := errors.New("injected")
	calls := 0
	s.failpoint = func(step string) error {
		if step == "delete content" {
			calls++
			if calls == 3 {
				return injected
			}
		}
		return nil
	}

	if err := s.DeleteRecord(rec); !errors.Is(err, injected) {
		t.Fatalf("got %v, want injected failure", err)
	}
	s.failpoint = nil

	left, err := s.GetAllContentForRecord(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 4 {
		t.Errorf("Partial delete: %d of 4 rows left", len(left))
	}
	if _, err := s.GetRecord(rec.ID); err != nil {
		t.Errorf("Record gone after failed delete: %v", err)
	}

	s.failpoint = func(step string) error {
		if step == "delete record" {
			return injected
		}
		return nil
	}
	s.DeleteRecord(rec)
	s.failpoint = nil
	if left, _ := s.GetAllContentForRecord(rec.ID); len(left) != 4 {
		t.Errorf("Content deleted although record delete failed: %d rows", len(left))
	}
}

func TestDeleteContent(t *testing.T) {
	s := newTestStore(t)
	rec := seedRecord(t, s, 2)
	all, _ := s.GetAllContentForRecord(rec.ID)

	if err := s.DeleteContent(all[0]); err != nil {
		t.Fatalf("Failed to delete content: %v", err)
	}
	if err := s.DeleteContent(all[0]); !errors.Is(err, ErrContentNotFound) {
		t.Errorf("Second delete: got %v, want ErrContentNotFound", err)
	}
	if left, _ := s.GetAllContentForRecord(rec.ID); len(left) != 1 {
		t.Errorf("%d rows left, want 1", len(left))
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetSetting("cloud_address"); !errors.Is(err, ErrSettingNotFound) {
		t.Fatalf("got %v, want ErrSettingNotFound", err)
	}
	if err := s.SaveSetting("cloud_address", "10.0.0.1:22"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSetting("cloud_address", "10.0.0.2:22"); err != nil {
		t.Fatal(err)
	}
	v, err := s.GetSetting("cloud_address")
	if err != nil {
		t.Fatal(err)
	}
	if v.Expose() != "10.0.0.2:22" {
		t.Errorf("setting = %q", v.Expose())
	}
	v.Destroy()

	if err := s.DeleteSetting("cloud_address"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSetting("cloud_address"); err != nil {
		t.Errorf("Deleting a missing setting failed: %v", err)
	}
	if _, err := s.GetSetting("cloud_address"); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("got %v after delete", err)
	}
}

func TestBreachCachePurge(t *testing.T) {
	clock := &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestStore(t, WithClock(clock.now))

	const old, fresh = "5BAA61E4C9B93F3F0682250B6CF8331B7EE68FD8", "7C4A8D09CA3762AF61E59520943DC26494F8941B"
	if err := s.AddBreachStatus(old, true); err != nil {
		t.Fatal(err)
	}
	clock.t = clock.t.Add(20 * time.Hour)
	if err := s.AddBreachStatus(strings.ToLower(fresh), false); err != nil {
		t.Fatal(err)
	}
	clock.t = clock.t.Add(5 * time.Hour)

	if _, found, err := s.BreachStatus(old); err != nil || found {
		t.Fatalf("Expired entry before purge: found=%v err=%v", found, err)
	}

	removed, err := s.PurgeBreachCache()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, found, _ := s.BreachStatus(old); found {
		t.Error("Entry older than 24h still present after purge")
	}
	exposed, found, _ := s.BreachStatus(fresh)
	if !found || exposed {
		t.Errorf("Fresh entry: exposed=%v found=%v", exposed, found)
	}
}

func TestBreachStatusExpires(t *testing.T) {
	clock := &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestStore(t, WithClock(clock.now))

	const hash = "5BAA61E4C9B93F3F0682250B6CF8331B7EE68FD8"
	if err := s.AddBreachStatus(hash, true); err != nil {
		t.Fatal(err)
	}
	clock.t = clock.t.Add(BreachTTL - time.Minute)
	if exposed, found, _ := s.BreachStatus(hash); !found || !exposed {
		t.Errorf("Within TTL: exposed=%v found=%v", exposed, found)
	}
	clock.t = clock.t.Add(2 * time.Minute)
	if _, found, _ := s.BreachStatus(hash); found {
		t.Error("Entry reported after BreachTTL")
	}
}

func TestPurgeWithoutExpiredEntriesDoesNotWrite(t *testing.T) {
	clock := &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestStore(t, WithClock(clock.now))
	if err := s.AddBreachStatus("5BAA61E4C9B93F3F0682250B6CF8331B7EE68FD8", false); err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(s.Path(), past, past); err != nil {
		t.Fatal(err)
	}
	clock.t = clock.t.Add(time.Hour)

	removed, err := s.PurgeBreachCache()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	fi, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !fi.ModTime().Equal(past) {
		t.Errorf("Purge changed mtime from %v to %v", past, fi.ModTime())
	}
}

func TestChangePassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s, err := Open(path, []byte("pw1"), WithIterations(testIters))
	if err != nil {
		t.Fatal(err)
	}
	rec := seedRecord(t, s, 2)
	s.SaveSetting("cloud_username", "alice")
	s.AddBreachStatus("ABCDEF", true)

	if err := s.ChangePassphrase([]byte("pw2")); err != nil {
		t.Fatalf("Failed to change passphrase: %v", err)
	}

	// still usable without reopening
	if all, err := s.GetAllContentForRecord(rec.ID); err != nil || len(all) != 2 {
		t.Fatalf("After change: %d rows, err %v", len(all), err)
	}
	s.Close()

	if _, err := Open(path, []byte("pw1")); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("Old passphrase: got %v, want ErrWrongPassword", err)
	}

	s = openTest(t, path, "pw2")
	all, err := s.GetAllContentForRecord(rec.ID)
	if err != nil || len(all) != 2 {
		t.Fatalf("Reopened: %d rows, err %v", len(all), err)
	}
	v, err := s.GetSetting("cloud_username")
	if err != nil || v.Expose() != "alice" {
		t.Errorf("Setting after change: %v", err)
	}
	if exposed, found, err := s.BreachStatus("abcdef"); err != nil || !found || !exposed {
		t.Errorf("Breach entry after change: exposed=%v found=%v err=%v", exposed, found, err)
	}
}

func TestChangePassphraseAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s, err := Open(path, []byte("pw1"), WithIterations(testIters))
	if err != nil {
		t.Fatal(err)
	}
	rec := seedRecord(t, s, 1)

	s.failpoint = func(step string) error {
		if step == "reencrypt content" {
			return errors.New("injected")
		}
		return nil
	}
	if err := s.ChangePassphrase([]byte("pw2")); err == nil {
		t.Fatal("Expected failure")
	}
	s.failpoint = nil

	if all, err := s.GetAllContentForRecord(rec.ID); err != nil || len(all) != 1 {
		t.Fatalf("Store unusable after failed change: %v", err)
	}
	s.Close()

	if _, err := Open(path, []byte("pw2")); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("New passphrase accepted after failed change: %v", err)
	}
	openTest(t, path, "pw1")
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s := openTest(t, path, "pw1")
	id, err := s.VaultID()
	if err != nil || id == "" {
		t.Fatalf("VaultID: %q, %v", id, err)
	}
	s.Close()

	info, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.VaultID != id || info.Iterations != testIters || info.Version != formatVersion {
		t.Errorf("Inspect = %+v", info)
	}

	if _, err := Inspect(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("missing file: got %v", err)
	}
}

func TestCompactKeepsData(t *testing.T) {
	s := newTestStore(t)
	rec := seedRecord(t, s, 3)
	if err := s.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if all, err := s.GetAllContentForRecord(rec.ID); err != nil || len(all) != 3 {
		t.Fatalf("After compact: %d rows, err %v", len(all), err)
	}
	if _, err := os.Stat(s.Path() + ".compact"); !os.IsNotExist(err) {
		t.Error("Temporary compact file left behind")
	}
}

func TestClosedStore(t *testing.T) {
	s := newTestStore(t)
	s.Close()
	if _, err := s.GetAllRecords(); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close: %v", err)
	}
}

func TestCloseWipesKeysWithoutDatabase(t *testing.T) {
	s := newTestStore(t)
	db, key := s.db, s.indexKey
	t.Cleanup(func() { db.Close() })

	// state left behind by a compact that could not reopen the file
	s.db = nil
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.enc != nil || s.indexKey != nil {
		t.Error("Keys kept after Close")
	}
	for _, b := range key {
		if b != 0 {
			t.Fatal("Index key not wiped")
		}
	}
}
