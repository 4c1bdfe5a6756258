package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackzampolin/panelvox/internal/providers"
	"github.com/jackzampolin/panelvox/internal/store"
	"github.com/jackzampolin/panelvox/internal/types"
)

// placeholderText is the single bubble a page gets when extraction found
// nothing readable. A blank page never fails the chapter.
const placeholderText = "No text detected on this page."

// extractionTimeout bounds one extraction call.
const extractionTimeout = 60 * time.Second

// ChapterRequest describes one chapter processing job.
type ChapterRequest struct {
	JobID          string
	ChapterID      string
	Title          string
	Mode           types.ProcessingMode
	NarratorGender string
	Pages          []types.PageFile
}

// Processor runs the chapter pipeline: per page, segmentation, extraction,
// gap recovery, normalization, dedup, classification, voice assignment,
// and synthesis, then assembly and progress reporting.
type Processor struct {
	store  store.Store
	vision providers.VisionProvider
	synth  *Synthesizer
	logger *slog.Logger

	// visionLimiter paces extraction calls to the provider's declared
	// requests-per-second budget.
	visionLimiter *providers.RateLimiter

	maxSliceHeight int
	sliceOverlap   int

	// readFile is swapped in tests.
	readFile func(path string) ([]byte, error)
}

// NewProcessor creates a processor.
func NewProcessor(st store.Store, vision providers.VisionProvider, synth *Synthesizer, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *providers.RateLimiter
	if vision != nil {
		if rps := vision.RequestsPerSecond(); rps > 0 {
			limiter = providers.NewRateLimiter(rps)
		}
	}
	return &Processor{
		store:          st,
		vision:         vision,
		synth:          synth,
		logger:         logger.With("component", "pipeline"),
		visionLimiter:  limiter,
		maxSliceHeight: DefaultMaxSliceHeight,
		sliceOverlap:   DefaultSliceOverlap,
		readFile:       os.ReadFile,
	}
}

// ProcessChapter runs one chapter job end to end. Pages are processed
// sequentially: the voice memo is shared mutable state scoped to this
// call.
func (p *Processor) ProcessChapter(ctx context.Context, req *ChapterRequest) error {
	logger := p.logger.With("job_id", req.JobID, "chapter_id", req.ChapterID)
	logger.Info("processing chapter", "pages", len(req.Pages), "mode", req.Mode)

	if err := p.store.UpdateJob(ctx, req.JobID, store.JobUpdate{
		Status:   store.StatusPtr(types.JobProcessing),
		Progress: store.IntPtr(10),
	}); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	chapter := &types.ChapterPayload{
		ChapterID:      req.ChapterID,
		Title:          req.Title,
		Status:         types.JobProcessing,
		Progress:       10,
		ProcessingMode: req.Mode,
		Pages:          make([]types.Page, 0, len(req.Pages)),
	}
	if err := p.store.SaveChapter(ctx, chapter); err != nil {
		return p.failJob(ctx, req.JobID, chapter, fmt.Errorf("save initial chapter: %w", err))
	}

	assigner := NewVoiceAssigner(req.Mode, req.NarratorGender)

	total := len(req.Pages)
	for i, pageFile := range req.Pages {
		page, err := p.processPage(ctx, req, i, pageFile, assigner)
		if err != nil {
			return p.failJob(ctx, req.JobID, chapter, fmt.Errorf("page %d: %w", i, err))
		}
		chapter.Pages = append(chapter.Pages, *page)

		progress := 10 + (i+1)*80/total
		chapter.Progress = progress
		if err := p.store.SaveChapter(ctx, chapter); err != nil {
			return p.failJob(ctx, req.JobID, chapter, fmt.Errorf("save chapter after page %d: %w", i, err))
		}
		if err := p.store.UpdateJob(ctx, req.JobID, store.JobUpdate{
			Progress: store.IntPtr(progress),
		}); err != nil {
			return p.failJob(ctx, req.JobID, chapter, fmt.Errorf("update progress after page %d: %w", i, err))
		}
		logger.Info("page complete", "page", i, "bubbles", len(page.Items), "progress", progress)
	}

	chapter.Status = types.JobReady
	chapter.Progress = 100
	if err := p.store.SaveChapter(ctx, chapter); err != nil {
		return p.failJob(ctx, req.JobID, chapter, fmt.Errorf("save final chapter: %w", err))
	}
	if err := p.store.UpdateJob(ctx, req.JobID, store.JobUpdate{
		Status:    store.StatusPtr(types.JobReady),
		Progress:  store.IntPtr(100),
		ChapterID: store.StringPtr(req.ChapterID),
	}); err != nil {
		return fmt.Errorf("mark job ready: %w", err)
	}

	logger.Info("chapter ready", "pages", len(chapter.Pages))
	return nil
}

// failJob records the failure. Progress is deliberately not part of the
// update so it stays frozen at the last successful value.
func (p *Processor) failJob(ctx context.Context, jobID string, chapter *types.ChapterPayload, cause error) error {
	p.logger.Error("chapter processing failed", "job_id", jobID, "error", cause)

	if updErr := p.store.UpdateJob(ctx, jobID, store.JobUpdate{
		Status: store.StatusPtr(types.JobFailed),
		Error:  store.StringPtr(cause.Error()),
	}); updErr != nil {
		p.logger.Error("failed to record job failure", "job_id", jobID, "error", updErr)
	}

	chapter.Status = types.JobFailed
	if saveErr := p.store.SaveChapter(ctx, chapter); saveErr != nil {
		p.logger.Error("failed to save failed chapter", "chapter_id", chapter.ChapterID, "error", saveErr)
	}
	return cause
}

// processPage runs the per-page stages and assembles the page.
func (p *Processor) processPage(ctx context.Context, req *ChapterRequest, pageIndex int, pageFile types.PageFile, assigner *VoiceAssigner) (*types.Page, error) {
	logger := p.logger.With("chapter_id", req.ChapterID, "page", pageIndex)

	imageData, width, height, err := p.loadPageImage(pageFile)
	if err != nil {
		return nil, err
	}

	candidates := p.extractCandidates(ctx, logger, imageData, pageIndex, height)

	// Gap recovery: re-scan uncovered vertical bands, then feed the
	// recovered candidates back through the same normalize/dedup path.
	candidates = append(candidates, p.recoverGaps(ctx, logger, imageData, pageIndex, height, candidates)...)

	accepted := make([]providers.Candidate, 0, len(candidates))
	for _, c := range candidates {
		c.Text = NormalizeText(c.Text)
		if IsJunk(c.Text) {
			continue
		}
		accepted = append(accepted, c)
	}
	accepted = MergeCandidates(accepted)

	bubbles, err := p.buildBubbles(ctx, req, pageIndex, accepted, assigner)
	if err != nil {
		return nil, err
	}

	if len(bubbles) == 0 {
		placeholder, err := p.placeholderBubble(ctx, req, pageIndex, width, height, assigner)
		if err != nil {
			return nil, err
		}
		bubbles = []types.Bubble{*placeholder}
	}

	page := &types.Page{
		PageIndex: pageIndex,
		ImageURL:  pageFile.ImageURL,
		Width:     width,
		Height:    height,
		Items:     bubbles,
	}
	AssemblePage(page)
	return page, nil
}

func (p *Processor) loadPageImage(pageFile types.PageFile) ([]byte, int, int, error) {
	imageData, err := p.readFile(pageFile.Path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read page image: %w", err)
	}

	width, height := pageFile.Width, pageFile.Height
	if width == 0 || height == 0 {
		width, height, err = DecodeBounds(imageData)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("probe page dimensions: %w", err)
		}
	}
	return imageData, width, height, nil
}

// extractCandidates runs extraction over each slice of the page and
// translates returned boxes into page coordinates. Extraction failures
// degrade: the page proceeds with whatever was gathered.
func (p *Processor) extractCandidates(ctx context.Context, logger *slog.Logger, imageData []byte, pageIndex, height int) []providers.Candidate {
	var candidates []providers.Candidate

	slices := Segment(height, p.maxSliceHeight, p.sliceOverlap)
	for _, slice := range slices {
		region := imageData
		if len(slices) > 1 {
			cropped, err := CropVertical(imageData, slice.Start, slice.End)
			if err != nil {
				logger.Warn("slice crop failed", "slice_start", slice.Start, "error", err)
				continue
			}
			region = cropped
		}

		extracted, err := p.extractRegion(ctx, region, pageIndex)
		if err != nil {
			logger.Warn("extraction failed for slice", "slice_start", slice.Start, "error", err)
			continue
		}
		candidates = append(candidates, translateBoxes(extracted, slice.Start)...)
	}
	return candidates
}

// recoverGaps re-scans uncovered vertical bands of the page.
func (p *Processor) recoverGaps(ctx context.Context, logger *slog.Logger, imageData []byte, pageIndex, height int, candidates []providers.Candidate) []providers.Candidate {
	boxes := make([][]float64, 0, len(candidates))
	for _, c := range candidates {
		boxes = append(boxes, c.Box)
	}

	var recovered []providers.Candidate
	for _, gap := range FindGaps(boxes, height) {
		cropped, err := CropVertical(imageData, gap.Top, gap.Bottom)
		if err != nil {
			logger.Warn("gap crop failed", "gap_top", gap.Top, "error", err)
			continue
		}
		extracted, err := p.extractRegion(ctx, cropped, pageIndex)
		if err != nil {
			logger.Warn("gap extraction failed", "gap_top", gap.Top, "error", err)
			continue
		}
		if len(extracted) > 0 {
			logger.Info("gap recovery found text", "gap_top", gap.Top, "candidates", len(extracted))
		}
		recovered = append(recovered, translateBoxes(extracted, gap.Top)...)
	}
	return recovered
}

func (p *Processor) extractRegion(ctx context.Context, region []byte, pageIndex int) ([]providers.Candidate, error) {
	if p.visionLimiter != nil {
		if err := p.visionLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	result, err := p.vision.Extract(ctx, &providers.ExtractionRequest{
		Image:     region,
		PageIndex: pageIndex,
		Timeout:   extractionTimeout,
	})
	if err != nil {
		if _, ok := providers.IsRateLimitError(err); ok && p.visionLimiter != nil {
			p.visionLimiter.Record429()
		}
		return nil, err
	}
	return result.Candidates, nil
}

// translateBoxes shifts candidate boxes vertically into page coordinates.
func translateBoxes(candidates []providers.Candidate, offsetY int) []providers.Candidate {
	out := make([]providers.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Box) >= 4 {
			box := append([]float64(nil), c.Box...)
			box[1] += float64(offsetY)
			box[3] += float64(offsetY)
			c.Box = box
		}
		out = append(out, c)
	}
	return out
}

// buildBubbles classifies, assigns voices, and synthesizes each accepted
// candidate. Sound effects are dropped from the spoken output entirely.
func (p *Processor) buildBubbles(ctx context.Context, req *ChapterRequest, pageIndex int, accepted []providers.Candidate, assigner *VoiceAssigner) ([]types.Bubble, error) {
	bubbles := make([]types.Bubble, 0, len(accepted))
	seq := 0
	for _, candidate := range accepted {
		kind := KindFromAnalysis(candidate.Analysis.CharacterType)
		if req.Mode == types.ModeNarrate && kind != types.BubbleSFX && LooksLikeSFX(candidate.Text) {
			kind = types.BubbleSFX
		}
		if kind == types.BubbleSFX {
			continue
		}

		text := StripSFXPrefix(candidate.Text)
		voice := assigner.Assign(candidate.Analysis, kind)

		bubble := types.Bubble{
			BubbleID:    fmt.Sprintf("bubble_%d_%d", pageIndex, seq),
			PanelBox:    candidate.Box,
			BubbleBox:   candidate.Box,
			Type:        kind,
			SpeakerID:   speakerID(req.ChapterID, pageIndex, seq),
			SpeakerName: speakerLabel(req.Mode, candidate.Analysis.CharacterType),
			VoiceID:     voice.VoiceID,
			Text:        text,
		}

		// Only ErrNoProviders or cancellation comes back as an error;
		// exhausted providers degrade inside Synthesize.
		synthResult, err := p.synthesizeBubble(ctx, text, candidate.Analysis, kind, voice)
		if err != nil {
			return nil, fmt.Errorf("bubble %s: %w", bubble.BubbleID, err)
		}
		bubble.AudioURL = synthResult.AudioURL
		bubble.WordTimes = synthResult.WordTimes

		bubbles = append(bubbles, bubble)
		seq++
	}
	return bubbles, nil
}

func (p *Processor) synthesizeBubble(ctx context.Context, text string, analysis types.CharacterAnalysis, kind types.BubbleType, voice VoiceParams) (*SynthesisResult, error) {
	return p.synth.Synthesize(ctx, &providers.TTSRequest{
		Text:            BuildDeliveryText(text, analysis, kind),
		Voice:           voice.VoiceID,
		Stability:       voice.Stability,
		SimilarityBoost: voice.SimilarityBoost,
		Style:           voice.Style,
		Instructions:    BuildToneHint(analysis, kind),
	})
}

// placeholderBubble gives an empty page a single narrated notice.
func (p *Processor) placeholderBubble(ctx context.Context, req *ChapterRequest, pageIndex, width, height int, assigner *VoiceAssigner) (*types.Bubble, error) {
	analysis := types.CharacterAnalysis{CharacterType: "narrator", Emotion: "neutral"}
	voice := assigner.Assign(analysis, types.BubbleNarration)

	synthResult, err := p.synthesizeBubble(ctx, placeholderText, analysis, types.BubbleNarration, voice)
	if err != nil {
		return nil, err
	}

	box := []float64{0, 0, float64(width), float64(minInt(height, 100))}
	return &types.Bubble{
		BubbleID:    fmt.Sprintf("bubble_%d_0", pageIndex),
		PanelBox:    box,
		BubbleBox:   box,
		Type:        types.BubbleNarration,
		SpeakerID:   speakerID(req.ChapterID, pageIndex, 0),
		SpeakerName: "Narrator",
		VoiceID:     voice.VoiceID,
		Text:        placeholderText,
		AudioURL:    synthResult.AudioURL,
		WordTimes:   synthResult.WordTimes,
	}, nil
}

// speakerID ties a bubble's speaker slot to the chapter for later
// correction lookups.
func speakerID(chapterID string, pageIndex, seq int) string {
	prefix := chapterID
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return fmt.Sprintf("%s_speaker_%d_%d", prefix, pageIndex, seq)
}

// speakerLabel title-cases the archetype for display. Narrate mode always
// shows the narrator.
func speakerLabel(mode types.ProcessingMode, characterType string) string {
	if mode == types.ModeNarrate {
		return "Narrator"
	}
	ct := normalizeArchetype(characterType)
	if ct == "" {
		return "Unknown"
	}
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(ct))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
