package lang

import (
	"errors"
	"testing"
)

func TestClassifier_Classify(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		name     string
		fragment string
		expected Language
	}{
		{
			name:     "russian sentence",
			fragment: "Китай запустил новый спутник.",
			expected: Russian,
		},
		{
			name:     "chinese sentence",
			fragment: "中国发射了一颗新卫星。",
			expected: Chinese,
		},
		{
			name:     "mixed scripts prefer ideographic",
			fragment: "Слово дня: 你好",
			expected: Chinese,
		},
		{
			name:     "latin only",
			fragment: "Hello, world",
			expected: Unknown,
		},
		{
			name:     "digits and punctuation",
			fragment: "2020 — 12:00!",
			expected: Unknown,
		},
		{
			name:     "empty",
			fragment: "",
			expected: Unknown,
		},
		{
			name:     "uppercase yo",
			fragment: "ЁЛКА",
			expected: Russian,
		},
		{
			name:     "cjk punctuation alone is not ideographic",
			fragment: "。，",
			expected: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.fragment); got != tt.expected {
				t.Errorf("Classify(%q) = %q, want %q", tt.fragment, got, tt.expected)
			}
		})
	}
}

func TestClassifier_Other(t *testing.T) {
	c := DefaultClassifier()

	if got := c.Other(Russian); got != Chinese {
		t.Errorf("Other(rus) = %q, want zho", got)
	}
	if got := c.Other(Chinese); got != Russian {
		t.Errorf("Other(zho) = %q, want rus", got)
	}
	if got := c.Other(Unknown); got != Unknown {
		t.Errorf("Other(unknown) = %q, want unknown", got)
	}
	if !c.Knows(Russian) || c.Knows(Unknown) || c.Knows("eng") {
		t.Error("Knows returned unexpected result")
	}
}

func TestOrderer_Order(t *testing.T) {
	o := DefaultOrderer()

	tests := []struct {
		name          string
		left          string
		right         string
		wantPrimary   Fragment
		wantSecondary Fragment
	}{
		{
			name:          "already canonical",
			left:          "Привет",
			right:         "你好",
			wantPrimary:   Fragment{Text: "Привет", Language: Russian},
			wantSecondary: Fragment{Text: "你好", Language: Chinese},
		},
		{
			name:          "swapped source order",
			left:          "你好",
			right:         "Привет",
			wantPrimary:   Fragment{Text: "Привет", Language: Russian},
			wantSecondary: Fragment{Text: "你好", Language: Chinese},
		},
		{
			name:          "unknown left keeps order",
			left:          "COVID-19",
			right:         "新冠",
			wantPrimary:   Fragment{Text: "COVID-19", Language: Unknown},
			wantSecondary: Fragment{Text: "新冠", Language: Chinese},
		},
		{
			name:          "unknown right with primary left",
			left:          "Привет",
			right:         "OK",
			wantPrimary:   Fragment{Text: "Привет", Language: Russian},
			wantSecondary: Fragment{Text: "OK", Language: Unknown},
		},
		{
			name:          "primary on the right moves first",
			left:          "WTO",
			right:         "ВТО",
			wantPrimary:   Fragment{Text: "ВТО", Language: Russian},
			wantSecondary: Fragment{Text: "WTO", Language: Unknown},
		},
		{
			name:          "both unknown pass through",
			left:          "A",
			right:         "B",
			wantPrimary:   Fragment{Text: "A", Language: Unknown},
			wantSecondary: Fragment{Text: "B", Language: Unknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := o.Order(tt.left, tt.right)
			if err != nil {
				t.Fatalf("Order() error = %v", err)
			}
			if pair.Primary != tt.wantPrimary {
				t.Errorf("Primary = %+v, want %+v", pair.Primary, tt.wantPrimary)
			}
			if pair.Secondary != tt.wantSecondary {
				t.Errorf("Secondary = %+v, want %+v", pair.Secondary, tt.wantSecondary)
			}
		})
	}
}

func TestOrderer_Order_SameLanguage(t *testing.T) {
	o := DefaultOrderer()

	tests := []struct {
		name     string
		left     string
		right    string
		language Language
	}{
		{name: "both russian", left: "Привет", right: "Пока", language: Russian},
		{name: "both chinese", left: "你好", right: "再见", language: Chinese},
		{name: "mixed counts as chinese", left: "Слово 你好", right: "再见", language: Chinese},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Order(tt.left, tt.right)
			var pe *PairingError
			if !errors.As(err, &pe) {
				t.Fatalf("Order() error = %v, want *PairingError", err)
			}
			if pe.Language != tt.language {
				t.Errorf("PairingError.Language = %q, want %q", pe.Language, tt.language)
			}
		})
	}
}

func TestOrderer_ConfigurablePrimary(t *testing.T) {
	o := Orderer{Classifier: DefaultClassifier(), Primary: Chinese}

	pair, err := o.Order("Привет", "你好")
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}
	if pair.Primary.Language != Chinese || pair.Secondary.Language != Russian {
		t.Errorf("got %+v, want chinese first", pair)
	}
}

func TestNewPair_EmptyFragment(t *testing.T) {
	_, err := NewPair(Fragment{Text: ""}, Fragment{Text: "你好", Language: Chinese})
	if !errors.Is(err, ErrEmptyFragment) {
		t.Errorf("NewPair() error = %v, want ErrEmptyFragment", err)
	}
}
