package main

import (
	"fmt"
	"strconv"

	"github.com/lagrangedao/go-compute-market/internal/ledger"
	"github.com/lagrangedao/go-compute-market/internal/models"
	"github.com/lagrangedao/go-compute-market/util"
	"github.com/urfave/cli/v2"
)

var jobCmd = &cli.Command{
	Name:  "job",
	Usage: "Request and complete compute jobs",
	Subcommands: []*cli.Command{
		jobRequest,
		jobComplete,
		jobGet,
		jobList,
	},
}

func parseJobID(cctx *cli.Context) (uint64, error) {
	if cctx.NArg() != 1 {
		return 0, fmt.Errorf("must specify the job id")
	}
	id, err := strconv.ParseUint(cctx.Args().First(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse job id: %s", cctx.Args().First())
	}
	return id, nil
}

var jobRequest = &cli.Command{
	Name:      "request",
	Usage:     "Reserve resources from a provider for the --from consumer",
	ArgsUsage: "<provider address> <resources>",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if cctx.NArg() != 2 {
			return fmt.Errorf("need two params: the provider address and resources")
		}
		provider := cctx.Args().Get(0)
		resources, err := strconv.ParseUint(cctx.Args().Get(1), 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse resources: %s", cctx.Args().Get(1))
		}
		p, err := newPrinter(cctx)
		if err != nil {
			return err
		}
		client, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		jobID, err := client.RequestCompute(ctx, provider, resources)
		if err != nil {
			return err
		}
		return p.print(models.JobCreatedResp{JobID: jobID}, func() *util.VisualTable {
			return util.NewVisualTable([]string{"JOB ID", "PROVIDER", "RESOURCES"}, [][]string{{strconv.FormatUint(jobID, 10), provider, strconv.FormatUint(resources, 10)}}, nil)
		})
	},
}

var jobComplete = &cli.Command{
	Name:      "complete",
	Usage:     "Complete a job as its --from provider",
	ArgsUsage: "<job id>",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		jobID, err := parseJobID(cctx)
		if err != nil {
			return err
		}
		p, err := newPrinter(cctx)
		if err != nil {
			return err
		}
		client, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		if err := client.CompleteJob(ctx, jobID); err != nil {
			return err
		}
		return p.message("job %d completed", jobID)
	},
}

var jobGet = &cli.Command{
	Name:      "get",
	Usage:     "Show a job",
	ArgsUsage: "<job id>",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		jobID, err := parseJobID(cctx)
		if err != nil {
			return err
		}
		p, err := newPrinter(cctx)
		if err != nil {
			return err
		}
		client, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		job, err := client.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		return p.print(job, func() *util.VisualTable { return jobTable(job) })
	},
}

var jobList = &cli.Command{
	Name:  "list",
	Usage: "List jobs",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "provider",
			Usage: "only jobs of this provider",
		},
		&cli.StringFlag{
			Name:  "consumer",
			Usage: "only jobs of this consumer",
		},
		&cli.StringFlag{
			Name:  "status",
			Usage: "only jobs in this status: active or completed",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		filter := ledger.JobFilter{
			Provider: cctx.String("provider"),
			Consumer: cctx.String("consumer"),
			Status:   ledger.JobStatus(cctx.String("status")),
		}
		if filter.Status != "" && !filter.Status.Valid() {
			return fmt.Errorf("unknown job status: %s", filter.Status)
		}
		p, err := newPrinter(cctx)
		if err != nil {
			return err
		}
		client, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		jobs, err := client.ListJobs(ctx, filter)
		if err != nil {
			return err
		}
		return p.print(models.JobListResp{Jobs: jobs}, func() *util.VisualTable { return jobTable(jobs...) })
	},
}
