package pipeline

import (
	"context"
	"fmt"

	"github.com/jackzampolin/panelvox/internal/providers"
	"github.com/jackzampolin/panelvox/internal/types"
)

// UpdateSpeaker applies a correction to every bubble across stored
// chapters whose speaker_id matches. A new voice re-runs synthesis for
// those bubbles and replaces their audio and timings. This is the only
// place audio is regenerated outside a pipeline pass.
func (p *Processor) UpdateSpeaker(ctx context.Context, speakerID string, update types.SpeakerUpdate) (int, error) {
	if update.DisplayName == "" && update.VoiceID == "" {
		return 0, fmt.Errorf("speaker update requires a display name or voice id")
	}

	chapterIDs, err := p.store.ListChapterIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list chapters: %w", err)
	}

	updated := 0
	for _, chapterID := range chapterIDs {
		n, err := p.updateSpeakerInChapter(ctx, chapterID, speakerID, update)
		if err != nil {
			return updated, err
		}
		updated += n
	}
	return updated, nil
}

func (p *Processor) updateSpeakerInChapter(ctx context.Context, chapterID, speakerID string, update types.SpeakerUpdate) (int, error) {
	updated := 0
	err := p.store.MutateChapter(ctx, chapterID, func(chapter *types.ChapterPayload) error {
		for pi := range chapter.Pages {
			for bi := range chapter.Pages[pi].Items {
				bubble := &chapter.Pages[pi].Items[bi]
				if bubble.SpeakerID != speakerID {
					continue
				}

				if update.DisplayName != "" {
					bubble.SpeakerName = update.DisplayName
				}
				if update.VoiceID != "" && update.VoiceID != bubble.VoiceID {
					if err := p.resynthesize(ctx, bubble, update.VoiceID); err != nil {
						return fmt.Errorf("resynthesize bubble %s: %w", bubble.BubbleID, err)
					}
				}
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// resynthesize regenerates a bubble's audio with a new voice, keeping the
// stored text. Degraded results still replace the old audio so the voice
// change is never half-applied.
func (p *Processor) resynthesize(ctx context.Context, bubble *types.Bubble, voiceID string) error {
	result, err := p.synth.Synthesize(ctx, &providers.TTSRequest{
		Text:            bubble.Text,
		Voice:           voiceID,
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Style:           0.2,
	})
	if err != nil {
		return err
	}

	bubble.VoiceID = voiceID
	bubble.AudioURL = result.AudioURL
	bubble.WordTimes = result.WordTimes
	return nil
}
