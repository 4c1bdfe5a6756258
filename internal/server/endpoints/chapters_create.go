package endpoints

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/panelvox/internal/api"
	"github.com/jackzampolin/panelvox/internal/ingest"
	"github.com/jackzampolin/panelvox/internal/jobs"
	"github.com/jackzampolin/panelvox/internal/pipeline"
	"github.com/jackzampolin/panelvox/internal/svcctx"
	"github.com/jackzampolin/panelvox/internal/types"
)

// maxUploadBytes caps a chapter upload. Webtoon archives run large.
const maxUploadBytes = 512 << 20

// CreateChapterResponse is returned after a successful upload.
type CreateChapterResponse struct {
	ChapterID string `json:"chapter_id"`
	JobID     string `json:"job_id"`
	Title     string `json:"title"`
	Pages     int    `json:"pages"`
}

// CreateChapterEndpoint handles POST /api/chapters: multipart upload,
// synchronous ingest, asynchronous processing.
type CreateChapterEndpoint struct{}

func (e *CreateChapterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/chapters", e.handler
}

// handler godoc
//
//	@Summary		Create a chapter
//	@Description	Upload page images, archives, or PDFs and start processing
//	@Tags			chapters
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			files			formData	file	true	"Page images, zip/cbz archives, or PDFs"
//	@Param			title			formData	string	false	"Chapter title"
//	@Param			mode			formData	string	false	"Processing mode: bring_to_life or narrate"
//	@Param			narrator_gender	formData	string	false	"Narrator gender for narrate mode"
//	@Success		202	{object}	CreateChapterResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/chapters [post]
func (e *CreateChapterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	services := svcctx.ServicesFrom(ctx)
	if services == nil || services.Store == nil || services.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request: "+err.Error())
		return
	}

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	uploads := make([]ingest.Upload, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to open upload: "+err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
			return
		}
		uploads = append(uploads, ingest.Upload{Filename: fh.Filename, Data: data})
	}

	result, err := ingest.Ingest(ctx, services.Home, ingest.Request{
		Uploads: uploads,
		Title:   r.FormValue("title"),
		Logger:  services.Logger,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "ingest failed: "+err.Error())
		return
	}

	mode := types.ParseProcessingMode(r.FormValue("mode"))
	narratorGender := r.FormValue("narrator_gender")
	if narratorGender == "" && services.ConfigManager != nil {
		narratorGender = services.ConfigManager.Get().Defaults.NarratorGender
	}

	jobID := uuid.New().String()
	if err := services.Store.CreateJob(ctx, &types.JobRecord{
		JobID:  jobID,
		Status: types.JobQueued,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create job: "+err.Error())
		return
	}

	err = services.Runner.Enqueue(&pipeline.ChapterRequest{
		JobID:          jobID,
		ChapterID:      result.ChapterID,
		Title:          result.Title,
		Mode:           mode,
		NarratorGender: narratorGender,
		Pages:          result.Pages,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, jobs.ErrChapterActive) {
			status = http.StatusConflict
		}
		writeError(w, status, "failed to enqueue chapter: "+err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, CreateChapterResponse{
		ChapterID: result.ChapterID,
		JobID:     jobID,
		Title:     result.Title,
		Pages:     len(result.Pages),
	})
}

func (e *CreateChapterEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title, mode, narratorGender string
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload files and start chapter processing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			fields := map[string]string{}
			if title != "" {
				fields["title"] = title
			}
			if mode != "" {
				fields["mode"] = mode
			}
			if narratorGender != "" {
				fields["narrator_gender"] = narratorGender
			}
			var resp CreateChapterResponse
			if err := client.PostFiles(cmd.Context(), "/api/chapters", args, fields, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Chapter title")
	cmd.Flags().StringVar(&mode, "mode", "", "Processing mode (bring_to_life or narrate)")
	cmd.Flags().StringVar(&narratorGender, "narrator-gender", "", "Narrator gender for narrate mode")
	return cmd
}
