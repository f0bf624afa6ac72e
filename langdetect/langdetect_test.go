package langdetect

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantCode string
	}{
		{"english", "The quick brown fox jumps over the lazy dog near the river bank.", "en"},
		{"german", "Ich habe heute keine Zeit, weil ich noch arbeiten muss.", "de"},
		{"french", "Je voudrais réserver une table pour deux personnes ce soir.", "fr"},
		{"spanish", "Mañana vamos a la playa con todos nuestros amigos.", "es"},
		{"too short", "ok", Unknown},
		{"blank", "   ", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, name := Detect(tt.text)
			if code != tt.wantCode {
				t.Errorf("Detect(%q) code = %q, want %q", tt.text, code, tt.wantCode)
			}
			if code != Unknown && name == "" {
				t.Errorf("Detect(%q) returned empty name", tt.text)
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"en", "English"},
		{"de", "German"},
		{"ja", "Japanese"},
		{"not-a-code!", "not-a-code!"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := Name(tt.code); got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}
