package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/panelvox/internal/api"
	"github.com/jackzampolin/panelvox/internal/store"
	"github.com/jackzampolin/panelvox/internal/svcctx"
	"github.com/jackzampolin/panelvox/internal/types"
)

// GetChapterEndpoint handles GET /api/chapters/{id}.
type GetChapterEndpoint struct{}

func (e *GetChapterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/chapters/{id}", e.handler
}

// handler godoc
//
//	@Summary		Get a chapter
//	@Description	Fetch the full processed chapter payload
//	@Tags			chapters
//	@Produce		json
//	@Param			id	path		string	true	"Chapter ID"
//	@Success		200	{object}	types.ChapterPayload
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/chapters/{id} [get]
func (e *GetChapterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	chapter, err := st.GetChapter(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chapter not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, chapter)
}

func (e *GetChapterEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "chapter <chapter_id>",
		Short: "Fetch a processed chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp types.ChapterPayload
			if err := client.Get(cmd.Context(), "/api/chapters/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
