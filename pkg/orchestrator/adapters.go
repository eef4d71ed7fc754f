package orchestrator

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/skycrane/skycrane/pkg/deploy"
	"github.com/skycrane/skycrane/pkg/jobs"
)

// Job types dispatched by the executor.
const (
	JobTypeCreateServer = "server.create"
	JobTypeSetupServer  = "server.setup"
	JobTypeDeleteServer = "server.delete"
	JobTypeDeployApp    = "app.deploy"
	JobTypeUndeployApp  = "app.undeploy"
)

// Param shapes carried by job params, one per job type.

type SetupServerParams struct {
	Name   string         `mapstructure:"name"`
	Apps   []string       `mapstructure:"apps"`
	Config map[string]any `mapstructure:"config"`
}

type DeleteServerParams struct {
	Name string `mapstructure:"name"`
}

type DeployAppParams struct {
	Server string         `mapstructure:"server"`
	App    string         `mapstructure:"app"`
	Config map[string]any `mapstructure:"config"`
}

type UndeployAppParams struct {
	Server string `mapstructure:"server"`
	App    string `mapstructure:"app"`
}

// RegisterAll binds every job type to its executor function. The mapping is
// built once at composition root; dispatch is a plain map lookup.
func RegisterAll(reg *jobs.Registry, h Handle, m *jobs.Manager) {
	reg.Register(JobTypeCreateServer, createServerFunc(h, m))
	reg.Register(JobTypeSetupServer, setupServerFunc(h, m))
	reg.Register(JobTypeDeleteServer, deleteServerFunc(h, m))
	reg.Register(JobTypeDeployApp, deployAppFunc(h, m))
	reg.Register(JobTypeUndeployApp, undeployAppFunc(h, m))
}

func createServerFunc(h Handle, m *jobs.Manager) jobs.Func {
	return func(ctx context.Context, job *jobs.Job) (map[string]any, error) {
		var req CreateServerRequest
		if err := decodeParams(job.Params, &req); err != nil {
			return nil, err
		}

		m.UpdateProgress(job.ID, 10, fmt.Sprintf("provisioning %s", req.Name))
		rec, err := h.CreateServer(ctx, req)
		if err != nil {
			return nil, err
		}
		m.UpdateProgress(job.ID, 100, fmt.Sprintf("server %s ready", rec.Name))

		return map[string]any{
			"name":       rec.Name,
			"ip_address": rec.IPAddress,
			"status":     rec.Status,
		}, nil
	}
}

func setupServerFunc(h Handle, m *jobs.Manager) jobs.Func {
	return func(ctx context.Context, job *jobs.Job) (map[string]any, error) {
		var p SetupServerParams
		if err := decodeParams(job.Params, &p); err != nil {
			return nil, err
		}

		res, err := h.SetupServer(ctx, p.Name, SetupConfig{Apps: p.Apps, Config: p.Config},
			deploy.WithProgress(progressTo(m, job.ID)))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"server":    res.Server,
			"order":     res.Order,
			"installed": res.Installed,
		}, nil
	}
}

func deleteServerFunc(h Handle, m *jobs.Manager) jobs.Func {
	return func(ctx context.Context, job *jobs.Job) (map[string]any, error) {
		var p DeleteServerParams
		if err := decodeParams(job.Params, &p); err != nil {
			return nil, err
		}

		m.UpdateProgress(job.ID, 10, fmt.Sprintf("deleting %s", p.Name))
		if err := h.DeleteServer(ctx, p.Name); err != nil {
			return nil, err
		}
		m.UpdateProgress(job.ID, 100, fmt.Sprintf("server %s deleted", p.Name))
		return map[string]any{"deleted": p.Name}, nil
	}
}

func deployAppFunc(h Handle, m *jobs.Manager) jobs.Func {
	return func(ctx context.Context, job *jobs.Job) (map[string]any, error) {
		var p DeployAppParams
		if err := decodeParams(job.Params, &p); err != nil {
			return nil, err
		}

		res, err := h.DeployApp(ctx, p.Server, p.App, p.Config,
			deploy.WithProgress(progressTo(m, job.ID)))
		if err != nil {
			// A mid-chain failure still reports what landed before it.
			if res != nil && len(res.Installed) > 0 {
				m.AddLog(job.ID, fmt.Sprintf("installed before failure: %v", res.Installed))
			}
			return nil, err
		}
		out := map[string]any{
			"server":  res.Server,
			"app":     res.App,
			"skipped": res.Skipped,
		}
		if len(res.Installed) > 0 {
			out["installed"] = res.Installed
		}
		return out, nil
	}
}

func undeployAppFunc(h Handle, m *jobs.Manager) jobs.Func {
	return func(ctx context.Context, job *jobs.Job) (map[string]any, error) {
		var p UndeployAppParams
		if err := decodeParams(job.Params, &p); err != nil {
			return nil, err
		}

		m.UpdateProgress(job.ID, 10, fmt.Sprintf("removing %s from %s", p.App, p.Server))
		if err := h.UndeployApp(ctx, p.Server, p.App); err != nil {
			return nil, err
		}
		m.UpdateProgress(job.ID, 100, fmt.Sprintf("%s removed", p.App))
		return map[string]any{"server": p.Server, "app": p.App, "removed": true}, nil
	}
}

// progressTo routes deployment progress through the manager so updates stay
// serialized with readers and snapshot writes.
func progressTo(m *jobs.Manager, jobID string) deploy.ProgressFunc {
	return func(percent int, step string) {
		m.UpdateProgress(jobID, percent, step)
	}
}

func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build params decoder: %w", err)
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("decode job params: %w", err)
	}
	return nil
}
