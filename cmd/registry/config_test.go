package main

import (
	"errors"
	"testing"
)

func TestCheckOpenMode(t *testing.T) {
	tests := []struct {
		name       string
		open       bool
		walletMode string
		allowOpen  bool
		wantErr    bool
	}{
		{"secret configured", false, "keystore", false, false},
		{"open without signer", true, "none", false, false},
		{"open with keystore signer", true, "keystore", false, true},
		{"open with node accounts", true, "node", false, true},
		{"open explicitly allowed", true, "key", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkOpenMode(tt.open, tt.walletMode, tt.allowOpen)
			if tt.wantErr != (err != nil) {
				t.Fatalf("checkOpenMode = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, errOpenSigningWallet) {
				t.Errorf("err = %v, want errOpenSigningWallet", err)
			}
		})
	}
}
