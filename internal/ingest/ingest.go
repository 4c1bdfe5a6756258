// Package ingest handles chapter upload intake: bare page images, zip/cbz
// archives, and PDFs rendered to page images.
package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/panelvox/internal/home"
	"github.com/jackzampolin/panelvox/internal/pipeline"
	"github.com/jackzampolin/panelvox/internal/types"
)

const (
	// renderDPI is the initial PDF rendering resolution.
	renderDPI = 300

	// minRenderDPI is the floor for the DPI stepdown on very tall pages.
	minRenderDPI = 72

	// maxRenderHeight caps rendered page height. Webtoon-style PDFs with
	// extremely tall pages re-render at a lower DPI to stay under it.
	maxRenderHeight = 6000

	// placeholderWidth/Height size the synthetic page used when nothing
	// readable was uploaded.
	placeholderWidth  = 800
	placeholderHeight = 1200
)

// imageExts are the page image formats accepted directly and from archives.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// Upload is one uploaded file, already read into memory.
type Upload struct {
	Filename string
	Data     []byte
}

// Request contains the parameters for ingesting a chapter upload.
type Request struct {
	Uploads []Upload
	Title   string
	Logger  *slog.Logger
}

// Result describes a successful ingest.
type Result struct {
	ChapterID string
	Title     string
	Pages     []types.PageFile
}

// Ingest expands uploads into sequentially named page images under the
// chapter's uploads directory. Unreadable images are skipped; a malformed
// archive or PDF fails the whole ingest. If no readable page survives, a
// blank placeholder page is written so the chapter can still process.
func Ingest(ctx context.Context, homeDir *home.Dir, req Request) (*Result, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}

	if len(req.Uploads) == 0 {
		return nil, fmt.Errorf("no files uploaded")
	}

	chapterID := uuid.New().String()
	if err := homeDir.EnsureChapterUploadsDir(chapterID); err != nil {
		return nil, fmt.Errorf("create chapter uploads dir: %w", err)
	}
	outDir := homeDir.ChapterUploadsPath(chapterID)

	title := req.Title
	if title == "" {
		title = deriveTitle(req.Uploads[0].Filename)
	}

	w := &pageWriter{
		outDir:    outDir,
		chapterID: chapterID,
		log:       log,
	}

	for _, upload := range req.Uploads {
		ext := strings.ToLower(filepath.Ext(upload.Filename))
		var err error
		switch {
		case imageExts[ext]:
			err = w.addImage(upload.Filename, upload.Data)
		case ext == ".zip" || ext == ".cbz":
			err = w.addArchive(upload.Filename, upload.Data)
		case ext == ".pdf":
			err = w.addPDF(ctx, upload.Filename, upload.Data)
		default:
			err = fmt.Errorf("unsupported file type %q", ext)
		}
		if err != nil {
			os.RemoveAll(outDir)
			return nil, fmt.Errorf("ingest %s: %w", upload.Filename, err)
		}
	}

	if len(w.pages) == 0 {
		log.Warn("no readable pages in upload, writing placeholder", "chapter_id", chapterID)
		if err := w.addPlaceholder(); err != nil {
			os.RemoveAll(outDir)
			return nil, fmt.Errorf("write placeholder page: %w", err)
		}
	}

	log.Info("ingest complete", "chapter_id", chapterID, "pages", len(w.pages))
	return &Result{
		ChapterID: chapterID,
		Title:     title,
		Pages:     w.pages,
	}, nil
}

// pageWriter accumulates sequentially numbered page files.
type pageWriter struct {
	outDir    string
	chapterID string
	log       *slog.Logger
	pages     []types.PageFile
}

// addImage probes and writes one page image. An undecodable image is
// skipped, not fatal: scanlation archives routinely carry a corrupt page
// or a credits text file with an image extension.
func (w *pageWriter) addImage(name string, data []byte) error {
	width, height, err := pipeline.DecodeBounds(data)
	if err != nil {
		w.log.Warn("skipping unreadable image", "file", name, "error", err)
		return nil
	}

	ext := strings.ToLower(filepath.Ext(name))
	filename := fmt.Sprintf("page_%04d%s", len(w.pages), ext)
	path := filepath.Join(w.outDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write page image: %w", err)
	}

	w.pages = append(w.pages, types.PageFile{
		Filename: filename,
		ImageURL: "/uploads/" + w.chapterID + "/" + filename,
		Width:    width,
		Height:   height,
		Path:     path,
	})
	return nil
}

// addArchive expands image members of a zip/cbz in case-insensitive name
// order. A file that is not a zip at all is a client error.
func (w *pageWriter) addArchive(name string, data []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("invalid archive: %w", err)
	}

	members := make([]*zip.File, 0, len(reader.File))
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		base := filepath.Base(f.Name)
		if strings.HasPrefix(base, ".") || strings.Contains(f.Name, "__MACOSX") {
			continue
		}
		if !imageExts[strings.ToLower(filepath.Ext(f.Name))] {
			continue
		}
		members = append(members, f)
	}
	sort.Slice(members, func(i, j int) bool {
		return strings.ToLower(members[i].Name) < strings.ToLower(members[j].Name)
	})

	for _, member := range members {
		rc, err := member.Open()
		if err != nil {
			return fmt.Errorf("open archive member %s: %w", member.Name, err)
		}
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("read archive member %s: %w", member.Name, err)
		}
		if err := w.addImage(member.Name, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// addPDF renders every PDF page to PNG via pdftoppm. Pages render
// concurrently but land in the page list in document order.
func (w *pageWriter) addPDF(ctx context.Context, name string, data []byte) error {
	pageCount, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return fmt.Errorf("invalid PDF: %w", err)
	}
	if pageCount == 0 {
		return fmt.Errorf("PDF has no pages")
	}

	// pdftoppm wants a file on disk.
	tmpPDF, err := os.CreateTemp("", "panelvox-*.pdf")
	if err != nil {
		return fmt.Errorf("create temp PDF: %w", err)
	}
	defer os.Remove(tmpPDF.Name())
	if _, err := tmpPDF.Write(data); err != nil {
		tmpPDF.Close()
		return fmt.Errorf("write temp PDF: %w", err)
	}
	tmpPDF.Close()

	rendered := make([][]byte, pageCount)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for page := 1; page <= pageCount; page++ {
		g.Go(func() error {
			img, err := renderPage(ctx, tmpPDF.Name(), page)
			if err != nil {
				return fmt.Errorf("render page %d of %s: %w", page, name, err)
			}
			rendered[page-1] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, img := range rendered {
		if err := w.addImage(fmt.Sprintf("%s-p%d.png", name, i+1), img); err != nil {
			return err
		}
	}
	return nil
}

// renderPage renders one PDF page with pdftoppm (poppler-utils), stepping
// the DPI down when the result would be taller than maxRenderHeight.
func renderPage(ctx context.Context, pdfPath string, page int) ([]byte, error) {
	data, err := runPdftoppm(ctx, pdfPath, page, renderDPI)
	if err != nil {
		return nil, err
	}

	_, height, err := pipeline.DecodeBounds(data)
	if err != nil {
		return nil, fmt.Errorf("probe rendered page: %w", err)
	}
	if height <= maxRenderHeight {
		return data, nil
	}

	dpi := renderDPI * maxRenderHeight / height
	if dpi < minRenderDPI {
		dpi = minRenderDPI
	}
	return runPdftoppm(ctx, pdfPath, page, dpi)
}

func runPdftoppm(ctx context.Context, pdfPath string, page, dpi int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "panelvox-page-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")
	pageStr := fmt.Sprintf("%d", page)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", fmt.Sprintf("%d", dpi),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	data, err := os.ReadFile(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}

// addPlaceholder writes a blank white page. The pipeline narrates it as a
// "no text detected" page rather than failing the chapter.
func (w *pageWriter) addPlaceholder() error {
	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return err
	}
	return w.addImage("placeholder.jpg", buf.Bytes())
}

// deriveTitle extracts a chapter title from the first uploaded filename:
// extension dropped, separators spaced.
func deriveTitle(filename string) string {
	base := filepath.Base(filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "Untitled Chapter"
	}
	return name
}
