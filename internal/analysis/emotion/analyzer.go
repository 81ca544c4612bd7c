package emotion

import "strings"

// Label is an emotion tag in the companion backend's vocabulary.
type Label string

const (
	Neutral  Label = "neutral"
	Happy    Label = "happy"
	Positive Label = "positive"
	Sad      Label = "sad"
	Angry    Label = "angry"
)

// Known reports whether the backend sent a label this client renders.
func Known(label string) bool {
	switch Label(strings.ToLower(strings.TrimSpace(label))) {
	case Neutral, Happy, Positive, Sad, Angry:
		return true
	}
	return false
}

// Decision is the classifier outcome with a crude keyword score.
type Decision struct {
	Emotion Label
	Score   int
}

var keywordBuckets = map[Label][]string{
	Happy: {
		"haha", "lol", "amazing", "awesome", "wonderful", "fantastic", "great news",
		"so happy", "love it", "love this", "thrilled", "delighted", "yay", "best day",
	},
	Positive: {
		"thanks", "thank you", "great", "good", "nice", "glad", "appreciate",
		"helpful", "better", "looking forward", "sounds good", "cool",
	},
	Sad: {
		"sad", "unhappy", "depressed", "lonely", "miss", "cry", "crying", "hurt",
		"upset", "disappointed", "heartbroken", "terrible day", "worn out", "tired of",
	},
	Angry: {
		"angry", "furious", "mad", "annoyed", "pissed", "hate", "rage", "fed up",
		"sick of", "outrageous", "unacceptable", "ridiculous",
	},
}

var punctuationBoost = map[Label]int{
	Happy:    3,
	Positive: 2,
}

// Analyze infers an emotion label from the user's utterance and the
// assistant's reply. Used only when the backend response carries no
// label of its own.
func Analyze(userUtterance, assistantReply string) Decision {
	userScore := scoreText(userUtterance)
	replyScore := scoreText(assistantReply)

	final := userScore
	// The reply mirrors the user's mood when the user reads neutral.
	if final.Score == 0 && replyScore.Score > 0 {
		final = replyScore
	}

	if final.Score == 0 {
		return Decision{Emotion: Neutral}
	}
	return final
}

func scoreText(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += 3
			}
		}
	}

	exclamations := strings.Count(text, "!")
	if exclamations > 0 && scores[Angry] == 0 && scores[Sad] == 0 {
		scores[Happy] += (exclamations - 1) * punctuationBoost[Happy]
		scores[Positive] += punctuationBoost[Positive]
	}

	best := Neutral
	bestScore := 0
	for label, s := range scores {
		if s > bestScore {
			bestScore = s
			best = label
		}
	}

	if bestScore == 0 {
		return Decision{Emotion: Neutral}
	}
	return Decision{Emotion: best, Score: bestScore}
}
