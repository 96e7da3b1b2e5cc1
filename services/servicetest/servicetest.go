// Package servicetest provides in-memory implementations of the services
// store and directory interfaces for tests.
package servicetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/andre-fig/backoffice/db"
	"github.com/andre-fig/backoffice/services"
)

// faults maps an operation name to the error it should return
type faults struct {
	fmu    sync.Mutex
	errors map[string]error
}

// Fail makes every later call of op return err. A nil err clears the fault.
func (f *faults) Fail(op string, err error) {
	f.fmu.Lock()
	defer f.fmu.Unlock()
	if f.errors == nil {
		f.errors = map[string]error{}
	}
	if err == nil {
		delete(f.errors, op)
		return
	}
	f.errors[op] = err
}

func (f *faults) fault(op string) error {
	f.fmu.Lock()
	defer f.fmu.Unlock()
	return f.errors[op]
}

// RedirectStore is an in-memory services.RedirectStore
type RedirectStore struct {
	faults

	mu      sync.Mutex
	records map[string]db.ScheduledRedirect
	seq     int
}

var _ services.RedirectStore = (*RedirectStore)(nil)

func NewRedirectStore() *RedirectStore {
	return &RedirectStore{records: map[string]db.ScheduledRedirect{}}
}

// Put stores rec as-is, bypassing validation
func (s *RedirectStore) Put(rec db.ScheduledRedirect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
}

func (s *RedirectStore) Create(_ context.Context, rec *db.ScheduledRedirect) error {
	if err := s.fault("Create"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		s.seq++
		rec.ID = fmt.Sprintf("redirect-%d", s.seq)
	}
	if rec.Status == "" {
		rec.Status = db.RedirectStatusScheduled
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	s.records[rec.ID] = *rec
	return nil
}

func (s *RedirectStore) Get(_ context.Context, id string) (*db.ScheduledRedirect, error) {
	if err := s.fault("Get"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: scheduled redirect %s", services.ErrNotFound, id)
	}
	return &rec, nil
}

func (s *RedirectStore) ListByStatus(_ context.Context, statuses ...db.RedirectStatus) ([]db.ScheduledRedirect, error) {
	if err := s.fault("ListByStatus"); err != nil {
		return nil, err
	}
	return s.filter(func(r db.ScheduledRedirect) bool {
		for _, st := range statuses {
			if r.Status == st {
				return true
			}
		}
		return false
	}), nil
}

func (s *RedirectStore) ListDueForActivation(_ context.Context, now time.Time) ([]db.ScheduledRedirect, error) {
	if err := s.fault("ListDueForActivation"); err != nil {
		return nil, err
	}
	return s.filter(func(r db.ScheduledRedirect) bool {
		return r.IsDueForActivation(now)
	}), nil
}

func (s *RedirectStore) FindOverlapping(_ context.Context, sourceUserID, sectorCode string, start time.Time, end *time.Time) ([]db.ScheduledRedirect, error) {
	return s.filter(func(r db.ScheduledRedirect) bool {
		if r.SourceUserID != sourceUserID || r.SectorCode != sectorCode || r.Status.IsTerminal() {
			return false
		}
		endsAfterStart := r.EndDate == nil || r.EndDate.After(start)
		startsBeforeEnd := end == nil || r.StartDate.Before(*end)
		return endsAfterStart && startsBeforeEnd
	}), nil
}

func (s *RedirectStore) UpdateStatus(_ context.Context, id string, from, to db.RedirectStatus) error {
	if err := s.fault("UpdateStatus"); err != nil {
		return err
	}
	if !db.CanTransitionRedirect(from, to) {
		return fmt.Errorf("%w: illegal transition %s -> %s", services.ErrConflict, from, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Status != from {
		return fmt.Errorf("%w: redirect %s is no longer %s", services.ErrConflict, id, from)
	}
	rec.Status = to
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	return nil
}

func (s *RedirectStore) UpdateEndDate(_ context.Context, id string, endDate time.Time) error {
	if err := s.fault("UpdateEndDate"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: scheduled redirect %s", services.ErrNotFound, id)
	}
	if rec.Status.IsTerminal() {
		return fmt.Errorf("%w: redirect %s is no longer live", services.ErrConflict, id)
	}
	rec.EndDate = &endDate
	s.records[id] = rec
	return nil
}

// Status returns the stored status of id, or "" when missing
func (s *RedirectStore) Status(id string) db.RedirectStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Status
}

func (s *RedirectStore) filter(keep func(db.ScheduledRedirect) bool) []db.ScheduledRedirect {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.ScheduledRedirect
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AccountStore is an in-memory services.AccountStore
type AccountStore struct {
	faults

	mu       sync.Mutex
	accounts map[string]db.Account
}

var _ services.AccountStore = (*AccountStore)(nil)

func NewAccountStore(accounts ...db.Account) *AccountStore {
	s := &AccountStore{accounts: map[string]db.Account{}}
	for _, a := range accounts {
		s.accounts[a.ID] = copyAccount(a)
	}
	return s
}

func (s *AccountStore) FindByAllowedGroup(_ context.Context, groupID string) (*db.Account, error) {
	if err := s.fault("FindByAllowedGroup"); err != nil {
		return nil, err
	}
	for _, a := range s.sorted() {
		for _, g := range a.AllowedGroups {
			if g == groupID {
				return &a, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no account for group %s", services.ErrNotFound, groupID)
}

func (s *AccountStore) FindByOverride(_ context.Context, sectorCode, destinationUserID string) (*db.Account, error) {
	for _, a := range s.sorted() {
		if dest, ok := a.Overrides[sectorCode]; ok && dest == destinationUserID {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("%w: no override %s -> %s", services.ErrNotFound, sectorCode, destinationUserID)
}

func (s *AccountStore) List(_ context.Context) ([]db.Account, error) {
	if err := s.fault("List"); err != nil {
		return nil, err
	}
	return s.sorted(), nil
}

func (s *AccountStore) SetOverride(_ context.Context, accountID, sectorCode, destinationUserID string) error {
	if err := s.fault("SetOverride"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: account %s", services.ErrNotFound, accountID)
	}
	a.Overrides[sectorCode] = destinationUserID
	s.accounts[accountID] = a
	return nil
}

func (s *AccountStore) RemoveOverride(_ context.Context, accountID, sectorCode, expectedDestination string) (bool, error) {
	if err := s.fault("RemoveOverride"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok || a.Overrides[sectorCode] != expectedDestination {
		return false, nil
	}
	delete(a.Overrides, sectorCode)
	s.accounts[accountID] = a
	return true, nil
}

// Override returns the stored slot value of an account
func (s *AccountStore) Override(accountID, sectorCode string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dest, ok := s.accounts[accountID].Overrides[sectorCode]
	return dest, ok
}

func (s *AccountStore) sorted() []db.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, copyAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyAccount(a db.Account) db.Account {
	overrides := make(map[string]string, len(a.Overrides))
	for k, v := range a.Overrides {
		overrides[k] = v
	}
	a.Overrides = overrides
	a.AllowedGroups = append([]string(nil), a.AllowedGroups...)
	return a
}

// Chat is a conversation row with its tags
type Chat struct {
	ID      string
	UserID  string
	Subject string
	Tags    []string
}

// ConversationStore is an in-memory services.ConversationStore
type ConversationStore struct {
	faults

	mu    sync.Mutex
	chats map[string]*Chat
	moved []int64
}

var _ services.ConversationStore = (*ConversationStore)(nil)

func NewConversationStore(chats ...Chat) *ConversationStore {
	s := &ConversationStore{chats: map[string]*Chat{}}
	for i := range chats {
		c := chats[i]
		s.chats[c.ID] = &c
	}
	return s
}

func (s *ConversationStore) HasChats(_ context.Context, userID string) (bool, error) {
	if err := s.fault("HasChats"); err != nil {
		return false, err
	}
	return len(s.OwnedBy(userID)) > 0, nil
}

func (s *ConversationStore) ReassignAll(_ context.Context, from, to string) (int64, error) {
	if err := s.fault("ReassignAll"); err != nil {
		return 0, err
	}
	return s.move(func(c *Chat) bool { return c.UserID == from }, to), nil
}

func (s *ConversationStore) ReassignSector(_ context.Context, from, to, sectorCode string) (int64, error) {
	if err := s.fault("ReassignSector"); err != nil {
		return 0, err
	}
	return s.move(func(c *Chat) bool { return c.UserID == from && c.Subject == sectorCode }, to), nil
}

func (s *ConversationStore) move(match func(*Chat) bool, to string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.chats {
		if match(c) {
			c.UserID = to
			c.Tags = nil
			n++
		}
	}
	s.moved = append(s.moved, n)
	return n
}

// Moves returns the affected row count of every reassignment, in call order
func (s *ConversationStore) Moves() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.moved...)
}

// OwnedBy returns the sorted ids of chats owned by userID
func (s *ConversationStore) OwnedBy(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, c := range s.chats {
		if c.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Chat returns a copy of a stored chat
func (s *ConversationStore) Chat(id string) (Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return Chat{}, false
	}
	return *c, true
}

// Directory is an in-memory services.UserScanner
type Directory struct {
	faults

	mu       sync.Mutex
	users    map[string]db.DirectoryUser
	appIDs   map[string]string
	getCalls int
}

var _ services.UserScanner = (*Directory)(nil)

func NewDirectory(users ...db.DirectoryUser) *Directory {
	d := &Directory{users: map[string]db.DirectoryUser{}, appIDs: map[string]string{}}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// SetApplication provisions userID on appID
func (d *Directory) SetApplication(userID, appID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appIDs[userID] = appID
}

// Put adds or replaces a user
func (d *Directory) Put(user db.DirectoryUser) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

// Remove deletes a user from the directory
func (d *Directory) Remove(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, userID)
}

// GetCalls counts GetUser invocations
func (d *Directory) GetCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getCalls
}

func (d *Directory) GetUser(_ context.Context, userID string) (*db.DirectoryUser, error) {
	if err := d.fault("GetUser"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.getCalls++
	u, ok := d.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", services.ErrNotFound, userID)
	}
	return &u, nil
}

func (d *Directory) ListUsers(_ context.Context, q db.DirectoryUserQuery) (*db.DirectoryUserPage, error) {
	if err := d.fault("ListUsers"); err != nil {
		return nil, err
	}
	page := &db.DirectoryUserPage{Data: []db.UserData{}}
	for _, u := range d.sorted() {
		page.Data = append(page.Data, db.UserData{ID: u.ID, Name: u.Name, Email: u.Email, Active: u.Active})
	}
	page.Meta.PerPage = q.PerPage
	return page, nil
}

func (d *Directory) MatchesApplication(_ context.Context, userID, appID string) (bool, error) {
	if err := d.fault("MatchesApplication"); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	got, ok := d.appIDs[userID]
	if !ok {
		return false, fmt.Errorf("%w: messaging identity of %s", services.ErrNotFound, userID)
	}
	return got == appID, nil
}

func (d *Directory) FindUserBySector(_ context.Context, sectorCode, exclude string) (*db.DirectoryUser, error) {
	if err := d.fault("FindUserBySector"); err != nil {
		return nil, err
	}
	for _, u := range d.sorted() {
		if u.ID != exclude && u.HasSector(sectorCode) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("%w: no user in sector %s", services.ErrNotFound, sectorCode)
}

func (d *Directory) EachUser(ctx context.Context, fn func(*db.DirectoryUser) bool) error {
	if err := d.fault("EachUser"); err != nil {
		return err
	}
	for _, u := range d.sorted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(&u) {
			return nil
		}
	}
	return nil
}

func (d *Directory) sorted() []db.DirectoryUser {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]db.DirectoryUser, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// User builds a directory user with one group and the given sector codes
func User(id, name, group string, sectors ...string) db.DirectoryUser {
	u := db.DirectoryUser{ID: id, Name: name, Active: true}
	if group != "" {
		u.Groups = []db.DirectoryGroup{{ID: group, Name: "Group " + group}}
	}
	for i, code := range sectors {
		u.Structs.Sectors = append(u.Structs.Sectors, db.DirectorySector{ID: i + 1, Code: code, Name: "Sector " + code})
	}
	return u
}
