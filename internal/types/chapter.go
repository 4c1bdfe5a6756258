// Package types provides shared payload types used across multiple packages.
// This package has no dependencies on other panelvox packages to avoid
// import cycles.
package types

// ProcessingMode selects how a chapter is voiced.
type ProcessingMode string

const (
	// ModeBringToLife assigns a distinct voice per character archetype.
	ModeBringToLife ProcessingMode = "bring_to_life"
	// ModeNarrate reads everything in a single narrator voice.
	ModeNarrate ProcessingMode = "narrate"
)

// ParseProcessingMode converts a string to a ProcessingMode.
// Returns ModeBringToLife if the string is not recognized.
func ParseProcessingMode(s string) ProcessingMode {
	switch s {
	case string(ModeNarrate):
		return ModeNarrate
	default:
		return ModeBringToLife
	}
}

// BubbleType classifies one unit of extracted text.
type BubbleType string

const (
	BubbleDialogue  BubbleType = "dialogue"
	BubbleNarration BubbleType = "narration"
	BubbleThought   BubbleType = "thought"
	BubbleSFX       BubbleType = "sfx"
)

// JobState is the lifecycle state of a chapter job.
// Transitions are forward-only: queued -> processing -> {ready, failed}.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobProcessing JobState = "processing"
	JobReady      JobState = "ready"
	JobFailed     JobState = "failed"
)

// WordTime is a word-level timestamp within one bubble's audio.
// Start/End are seconds and restart at zero for each bubble.
type WordTime struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Bubble is one unit of extracted text with its page-relative box and
// synthesized audio. BubbleID is unique within a page and encodes
// page+sequence (bubble_{page}_{seq}) for traceability.
type Bubble struct {
	BubbleID    string     `json:"bubble_id"`
	PanelBox    []float64  `json:"panel_box"`
	BubbleBox   []float64  `json:"bubble_box"` // [x0, y0, x1, y1], x0<x1 and y0<y1
	Type        BubbleType `json:"type"`
	SpeakerID   string     `json:"speaker_id"`
	SpeakerName string     `json:"speaker_name,omitempty"`
	VoiceID     string     `json:"voice_id"`
	Text        string     `json:"text"`
	AudioURL    string     `json:"audio_url"`
	WordTimes   []WordTime `json:"word_times"`
}

// Page holds the bubbles of one page in reading order.
// ReadingOrder is always a permutation of the bubble ids in Items, ordered
// by ascending top edge of BubbleBox.
type Page struct {
	PageIndex    int      `json:"page_index"`
	ImageURL     string   `json:"image_url"`
	Width        int      `json:"width,omitempty"`
	Height       int      `json:"height,omitempty"`
	Items        []Bubble `json:"items"`
	ReadingOrder []string `json:"reading_order"`
}

// ChapterPayload is the finished chapter document. It is replaced wholesale
// on each save; only voice corrections patch bubbles in place.
type ChapterPayload struct {
	ChapterID      string         `json:"chapter_id"`
	Title          string         `json:"title,omitempty"`
	Status         JobState       `json:"status"`
	Progress       int            `json:"progress"`
	Pages          []Page         `json:"pages"`
	ProcessingMode ProcessingMode `json:"processing_mode"`
}

// JobRecord tracks one chapter processing job.
// Progress is 0 at creation, spans [10, 90] while processing, 100 on ready.
type JobRecord struct {
	JobID     string   `json:"job_id"`
	Status    JobState `json:"status"`
	Progress  int      `json:"progress"`
	ChapterID string   `json:"chapter_id,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// CharacterAnalysis describes the speaker of one extracted candidate.
// It is ephemeral: produced by the vision provider per candidate and
// consumed immediately by voice assignment, never persisted.
type CharacterAnalysis struct {
	CharacterType   string  `json:"character_type"` // coarse archetype, e.g. "adult_male"
	Emotion         string  `json:"emotion"`
	Tone            string  `json:"tone"`
	VoiceSuggestion string  `json:"voice_suggestion"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

// PageFile describes one ingested page image handed to the pipeline.
type PageFile struct {
	Filename string `json:"filename"`
	ImageURL string `json:"image_url"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Path     string `json:"path"`
}

// SpeakerUpdate patches bubbles sharing a speaker id across stored chapters.
type SpeakerUpdate struct {
	DisplayName string `json:"display_name,omitempty"`
	VoiceID     string `json:"voice_id,omitempty"`
}
