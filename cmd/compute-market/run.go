package main

import (
	"strconv"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/itsjamie/gin-cors"
	"github.com/lagrangedao/go-compute-market/conf"
	"github.com/lagrangedao/go-compute-market/internal/initializer"
	"github.com/lagrangedao/go-compute-market/internal/market"
	"github.com/lagrangedao/go-compute-market/util"
	"github.com/urfave/cli/v2"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Start a market node",
	Action: func(cctx *cli.Context) error {
		logs.GetLogger().Info("Start in compute market mode.")

		repo, err := repoPath(cctx)
		if err != nil {
			return err
		}
		node, err := initializer.ProjectInit(repo)
		if err != nil {
			return err
		}
		c := conf.GetConfig()

		r := gin.Default()
		r.Use(cors.Middleware(cors.Config{
			Origins:         "*",
			Methods:         "GET, PUT, POST, DELETE",
			RequestHeaders:  "Origin, Authorization, Content-Type, X-Market-Address, X-Market-Timestamp, X-Market-Nonce, X-Market-Signature",
			ExposedHeaders:  "",
			MaxAge:          50 * time.Second,
			ValidateHeaders: false,
		}))
		pprof.Register(r)

		v1 := r.Group("/api/v1")
		auth := market.NewAuthenticator(c.API.RequireSignature, c.API.SignatureTTL.Duration, node.Nonces)
		market.NewService(node.Ledger, node.Hub, node.Info).RegisterRoutes(v1.Group("/market"), auth)
		if !c.API.RequireSignature {
			logs.GetLogger().Warn("request signatures are disabled, caller addresses are trusted as sent")
		}

		shutdownChan := make(chan struct{})
		httpStopper, err := util.ServeHttp(r, "market-api", ":"+strconv.Itoa(c.API.Port), c.LOG.CrtFile, c.LOG.KeyFile)
		if err != nil {
			node.Stop(cctx.Context)
			return err
		}
		logs.GetLogger().Infof("market api listening on :%d, ledger backend: %s", c.API.Port, c.LEDGER.Backend)

		finishCh := util.MonitorShutdown(shutdownChan,
			util.ShutdownHandler{Component: "market-api", StopFunc: httpStopper},
			util.ShutdownHandler{Component: "market-node", StopFunc: node.Stop},
		)
		<-finishCh

		return nil
	},
}
