package emotion

import "testing"

func TestAnalyzeSadUser(t *testing.T) {
	decision := Analyze("i feel so lonely today", "I'm here with you")
	if decision.Emotion != Sad {
		t.Fatalf("expected sad emotion, got %s", decision.Emotion)
	}
	if decision.Score == 0 {
		t.Fatal("expected a nonzero keyword score")
	}
}

func TestAnalyzeAngryUser(t *testing.T) {
	decision := Analyze("i am so fed up with this, it's ridiculous", "Let's take a breath")
	if decision.Emotion != Angry {
		t.Fatalf("expected angry emotion, got %s", decision.Emotion)
	}
}

func TestAnalyzeFallsBackToReply(t *testing.T) {
	decision := Analyze("tell me something", "That's wonderful news, I'm thrilled for you")
	if decision.Emotion != Happy {
		t.Fatalf("expected happy emotion from reply, got %s", decision.Emotion)
	}
}

func TestAnalyzeNeutralDefault(t *testing.T) {
	decision := Analyze("what time is it", "It is around noon.")
	if decision.Emotion != Neutral {
		t.Fatalf("expected neutral emotion, got %s", decision.Emotion)
	}
}

func TestKnown(t *testing.T) {
	cases := []struct {
		label string
		want  bool
	}{
		{"happy", true},
		{" Neutral ", true},
		{"positive", true},
		{"ecstatic", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := Known(tc.label); got != tc.want {
			t.Fatalf("Known(%q) = %v, want %v", tc.label, got, tc.want)
		}
	}
}
