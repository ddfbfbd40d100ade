package authority

import (
	"errors"
	"testing"

	"nodechain/xtypes"
)

func genKey(seed byte) xtypes.PublicKey {
	var s [32]byte
	s[0] = seed
	s[31] = seed ^ 0xAA
	return xtypes.GeneratePrivateKey(s).Public()
}

func TestSatisfiesSimpleThreshold(t *testing.T) {
	k1, k2 := genKey(1), genKey(2)
	a := Authority{
		WeightThreshold: 2,
		KeyAuths: []KeyAuth{
			{Key: k1, Weight: 1},
			{Key: k2, Weight: 1},
		},
	}
	signed := map[string]bool{k1.Hex(): true}
	if a.Satisfies(signed, nil) {
		t.Fatalf("one key of weight 1 should not satisfy threshold 2")
	}
	signed[k2.Hex()] = true
	if !a.Satisfies(signed, nil) {
		t.Fatalf("both keys together should satisfy threshold 2")
	}
}

func TestSatisfiesWeightedSingleKey(t *testing.T) {
	k1 := genKey(3)
	a := Authority{WeightThreshold: 1, KeyAuths: []KeyAuth{{Key: k1, Weight: 5}}}
	if !a.Satisfies(map[string]bool{k1.Hex(): true}, nil) {
		t.Fatalf("high-weight single key should satisfy low threshold")
	}
}

type fakeResolver map[xtypes.AccountName]Authority

func (f fakeResolver) ActiveAuthority(a xtypes.AccountName) (Authority, error) {
	auth, ok := f[a]
	if !ok {
		return Authority{}, errors.New("not found")
	}
	return auth, nil
}

func TestSatisfiesThroughDelegatedAccount(t *testing.T) {
	k1 := genKey(9)
	delegate := Authority{WeightThreshold: 1, KeyAuths: []KeyAuth{{Key: k1, Weight: 1}}}
	resolver := fakeResolver{"alice": delegate}

	a := Authority{
		WeightThreshold: 1,
		AccountAuths:    []AccountAuth{{Account: "alice", Weight: 1}},
	}
	if !a.Satisfies(map[string]bool{k1.Hex(): true}, resolver) {
		t.Fatalf("delegated account authority satisfied by its own key should count")
	}
	if a.Satisfies(map[string]bool{}, resolver) {
		t.Fatalf("no signatures should not satisfy delegated authority")
	}
}

func TestValidateRejectsUnreachableThreshold(t *testing.T) {
	k1 := genKey(4)
	a := Authority{WeightThreshold: 10, KeyAuths: []KeyAuth{{Key: k1, Weight: 1}}}
	if err := a.Validate(); err == nil {
		t.Fatalf("expected validation error for unreachable threshold")
	}
}

func TestOwnerUpdateLimiterEnforcesCooldown(t *testing.T) {
	l := NewOwnerUpdateLimiter()
	if err := l.Allow("alice", 0); err != nil {
		t.Fatalf("first update should be allowed: %v", err)
	}
	if err := l.Allow("alice", 1000); err == nil {
		t.Fatalf("second update within the hour should be rate limited")
	}
	if err := l.Allow("alice", xtypes.TimePoint(61*60*1_000_000)); err != nil {
		t.Fatalf("update after cooldown should be allowed: %v", err)
	}
}
