package notify

import (
	"context"
	"errors"
	"testing"

	"hirelane/internal/database/dbtest"
)

type failingStore struct{}

func (failingStore) Load(context.Context, uint) (Preferences, error) {
	return Preferences{}, errors.New("db down")
}

func (failingStore) Save(context.Context, uint, Preferences) error { return nil }

func TestService_DefaultsThenUpdate(t *testing.T) {
	db := dbtest.Open(t)
	user := dbtest.SeedUser(t, db, "u")
	svc := NewService(NewGormStore(db))
	ctx := context.Background()

	prefs, err := svc.Preferences(ctx, user.ID)
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	if prefs != Defaults {
		t.Errorf("prefs = %+v, want defaults", prefs)
	}

	on := true
	if _, err := svc.Update(ctx, user.ID, Patch{SoundEnabled: &on}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	off := false
	got, err := svc.Update(ctx, user.ID, Patch{BrowserEnabled: &off})
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	want := Preferences{BrowserEnabled: false, SoundEnabled: true}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	stored, _ := svc.Preferences(ctx, user.ID)
	if stored != want {
		t.Errorf("stored %+v, want %+v", stored, want)
	}
}

func TestService_StoreErrorPropagates(t *testing.T) {
	svc := NewService(failingStore{})
	if _, err := svc.Preferences(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
}
