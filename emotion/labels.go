package emotion

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label is one of the eight emotions the classifier can emit.
type Label string

const (
	Neutral  Label = "neutral"
	Calm     Label = "calm"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Angry    Label = "angry"
	Fear     Label = "fear"
	Disgust  Label = "disgust"
	Surprise Label = "surprise"
)

// Labels is the closed label set in classifier output order.
var Labels = []Label{Neutral, Calm, Happy, Sad, Angry, Fear, Disgust, Surprise}

// NumLabels is the width of the classifier output.
const NumLabels = 8

// LabelAt returns the label for a classifier output index.
func LabelAt(index int) (Label, error) {
	if index < 0 || index >= len(Labels) {
		return "", fmt.Errorf("label index %d out of range [0, %d)", index, len(Labels))
	}
	return Labels[index], nil
}

// ParseLabel accepts any casing of a known label.
func ParseLabel(s string) (Label, error) {
	l := Label(strings.ToLower(strings.TrimSpace(s)))
	if l.Index() < 0 {
		return "", fmt.Errorf("unknown emotion %q", s)
	}
	return l, nil
}

// Index returns the position of l in Labels, or -1.
func (l Label) Index() int {
	for i, known := range Labels {
		if known == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l belongs to the label set.
func (l Label) Valid() bool {
	return l.Index() >= 0
}

// Display is the title-cased label shown to users ("Happy").
func (l Label) Display() string {
	// Casers are stateful, so each call gets its own.
	return cases.Title(language.English).String(string(l))
}

func (l Label) String() string {
	return string(l)
}
