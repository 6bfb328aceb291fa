package mongo

import (
	"reflect"
	"testing"
)

func TestMissingCollections(t *testing.T) {
	required := []string{CollectionUsers, CollectionVerificationCodes, CollectionSessions}

	if got := missingCollections(required, []string{"sessions", "verification_codes", "users", "audit"}); len(got) != 0 {
		t.Fatalf("expected nothing missing, got %v", got)
	}
	got := missingCollections(required, []string{"users"})
	want := []string{"sessions", "verification_codes"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
