package encryption

import (
	"testing"

	"github.com/jerome/simply-versioned/internal/config"
)

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		typ      string
		wantType string
		wantErr  bool
	}{
		{name: "empty type disables sealing", typ: "", wantType: "<nil>"},
		{name: "none", typ: "none", wantType: "<nil>"},
		{name: "age", typ: "age", wantType: "*encryption.AgeEncryptor"},
		{name: "test", typ: "test", wantType: "*encryption.TestEncryptor"},
		{name: "unknown", typ: "rot13", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewEncryptorFromConfig() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEncryptorFromConfig() error = %v", err)
			}
			if gotType := typeName(got); gotType != tt.wantType {
				t.Errorf("NewEncryptorFromConfig() = %s, want %s", gotType, tt.wantType)
			}
		})
	}
}

func typeName(e Encryptor) string {
	switch e.(type) {
	case nil:
		return "<nil>"
	case *AgeEncryptor:
		return "*encryption.AgeEncryptor"
	case *TestEncryptor:
		return "*encryption.TestEncryptor"
	default:
		return "unknown"
	}
}
