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

// GetJobEndpoint handles GET /api/jobs/{id}, the polling endpoint for
// chapter processing progress.
type GetJobEndpoint struct{}

func (e *GetJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}", e.handler
}

// handler godoc
//
//	@Summary		Get a job
//	@Description	Poll a chapter processing job for status and progress
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	types.JobRecord
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/jobs/{id} [get]
func (e *GetJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	job, err := st.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (e *GetJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "job <job_id>",
		Short: "Poll a processing job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp types.JobRecord
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
