package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/retroscale/retroscale/internal/queue"
)

type jobBody struct {
	Job queue.Job `json:"job"`
}

type jobOutput struct {
	Body jobBody
}

type jobListOutput struct {
	Body struct {
		Jobs  []queue.Job `json:"jobs"`
		Total int         `json:"total"`
	}
}

type createJobInput struct {
	Body struct {
		Input  string `json:"input" doc:"Path of the video file to enhance" minLength:"1"`
		Output string `json:"output,omitempty" doc:"Output path; derived from the input when omitted"`
	}
}

type addDirectoryInput struct {
	Body struct {
		Dir string `json:"dir" doc:"Directory to scan for video files (non-recursive)" minLength:"1"`
	}
}

type jobIDInput struct {
	ID int64 `path:"id" doc:"Job identifier"`
}

func registerJobRoutes(api huma.API, q *queue.ProcessingQueue) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/api/v1/jobs",
		Summary:       "Enqueue an enhancement job",
		DefaultStatus: http.StatusCreated,
		Tags:          []string{"jobs"},
	}, func(ctx context.Context, input *createJobInput) (*jobOutput, error) {
		job := q.AddJob(input.Body.Input, input.Body.Output)
		return &jobOutput{Body: jobBody{Job: job}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "enqueue-directory",
		Method:        http.MethodPost,
		Path:          "/api/v1/jobs/directory",
		Summary:       "Enqueue every video file in a directory",
		DefaultStatus: http.StatusCreated,
		Tags:          []string{"jobs"},
	}, func(ctx context.Context, input *addDirectoryInput) (*jobListOutput, error) {
		jobs, err := q.AddDirectory(input.Body.Dir)
		if err != nil {
			return nil, huma.Error400BadRequest("cannot enqueue directory", err)
		}
		out := &jobListOutput{}
		out.Body.Jobs = jobs
		out.Body.Total = len(jobs)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs",
		Summary:     "List all jobs",
		Tags:        []string{"jobs"},
	}, func(ctx context.Context, _ *struct{}) (*jobListOutput, error) {
		jobs := q.GetAllJobs()
		out := &jobListOutput{}
		out.Body.Jobs = jobs
		out.Body.Total = len(jobs)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get one job",
		Tags:        []string{"jobs"},
	}, func(ctx context.Context, input *jobIDInput) (*jobOutput, error) {
		job, ok := q.GetJobStatus(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("job not found")
		}
		return &jobOutput{Body: jobBody{Job: job}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-job",
		Method:      http.MethodDelete,
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Cancel a pending job",
		Description: "Only jobs that have not started can be cancelled; running and finished jobs are refused.",
		Tags:        []string{"jobs"},
	}, func(ctx context.Context, input *jobIDInput) (*jobOutput, error) {
		if !q.CancelJob(input.ID) {
			job, ok := q.GetJobStatus(input.ID)
			if !ok {
				return nil, huma.Error404NotFound("job not found")
			}
			return nil, huma.Error409Conflict("job is " + string(job.Status) + " and cannot be cancelled")
		}
		job, _ := q.GetJobStatus(input.ID)
		return &jobOutput{Body: jobBody{Job: job}}, nil
	})
}
