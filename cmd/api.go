package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/imgx/internal/shared"
	"github.com/urfave/cli/v3"
)

// APIGet makes a direct GET request through the resilient client.
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}
	if err := r.init(ctx); err != nil {
		return err
	}

	r.logger.Info("GET request", "path", path)

	resp, err := r.svc.API.Get(ctx, path, nil)
	if err != nil {
		return err
	}
	return r.writeBody(resp, cmd.Bool("pretty"))
}

// APIPost makes a direct POST request with a JSON body.
func (r *Runner) APIPost(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	data := cmd.String("data")

	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}
	if data == "" {
		return fmt.Errorf("%w: --data flag is required", shared.ErrMissingArgument)
	}
	if err := shared.ValidateJSON([]byte(data)); err != nil {
		return err
	}
	if err := r.init(ctx); err != nil {
		return err
	}

	r.logger.Info("POST request", "path", path)

	resp, err := r.svc.API.Post(ctx, path, []byte(data))
	if err != nil {
		return err
	}
	return r.writeBody(resp, cmd.Bool("pretty"))
}
