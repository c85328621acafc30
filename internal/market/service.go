package market

import (
	"net/http"
	"os"
	"runtime"
	"strconv"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gin-gonic/gin"
	"github.com/lagrangedao/go-compute-market/build"
	"github.com/lagrangedao/go-compute-market/internal/ledger"
	"github.com/lagrangedao/go-compute-market/internal/models"
	"github.com/lagrangedao/go-compute-market/util"
	"github.com/lagrangedao/go-compute-market/wallet"
	"golang.org/x/xerrors"
)

// Service exposes the ledger over HTTP.
type Service struct {
	ledger *ledger.Ledger
	hub    *Hub
	node   NodeInfo
}

type NodeInfo struct {
	Name    string
	ID      string
	Address string
	Backend string
}

func NewService(l *ledger.Ledger, hub *Hub, node NodeInfo) *Service {
	if node.Name == "" {
		node.Name, _ = os.Hostname()
	}
	return &Service{ledger: l, hub: hub, node: node}
}

func (s *Service) RegisterRoutes(router *gin.RouterGroup, auth *Authenticator) {
	signed := auth.Middleware()

	router.GET("/host/info", s.GetHostInfo)
	router.GET("/audit", s.CheckInvariants)
	if s.hub != nil {
		router.GET("/events", s.hub.ServeWs)
	}

	router.POST("/providers", signed, s.RegisterProvider)
	router.PUT("/providers", signed, s.UpdateProvider)
	router.GET("/providers", s.ListProviders)
	router.GET("/providers/:address", s.GetProvider)
	router.POST("/providers/withdraw", signed, s.WithdrawEarnings)

	router.POST("/consumers/funds", signed, s.AddFunds)
	router.GET("/consumers/:address", s.GetConsumer)

	router.POST("/jobs", signed, s.RequestCompute)
	router.GET("/jobs", s.ListJobs)
	router.GET("/jobs/:id", s.GetJob)
	router.POST("/jobs/:id/complete", signed, s.CompleteJob)
}

func (s *Service) GetHostInfo(c *gin.Context) {
	lastJobID, err := s.ledger.LastJobID(c.Request.Context())
	if err != nil {
		writeLedgerError(c, "reading last job id", err)
		return
	}
	info := models.HostInfo{
		NodeName:        s.node.Name,
		NodeID:          s.node.ID,
		NodeAddress:     s.node.Address,
		Version:         build.UserVersion(),
		Backend:         s.node.Backend,
		OperatingSystem: runtime.GOOS,
		Architecture:    runtime.GOARCH,
		CPUCores:        runtime.NumCPU(),
		LastJobID:       lastJobID,
	}
	if s.hub != nil {
		info.EventClients = s.hub.Count()
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(info))
}

func (s *Service) CheckInvariants(c *gin.Context) {
	report, err := s.ledger.CheckInvariants(c.Request.Context())
	if err != nil {
		writeLedgerError(c, "auditing ledger", err)
		return
	}
	if report.Broken {
		logs.GetLogger().Errorf("ledger invariants broken:\n%s", report)
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(report))
}

func (s *Service) RegisterProvider(c *gin.Context) {
	var req models.ProviderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}
	caller := Caller(c)
	if err := s.ledger.RegisterProvider(c.Request.Context(), caller, req.Resources, req.PricePerUnit); err != nil {
		writeLedgerError(c, "registering provider "+caller, err)
		return
	}
	logs.GetLogger().Infof("provider registered, address: %s, resources: %d, price: %d", caller, req.Resources, req.PricePerUnit)
	c.JSON(http.StatusOK, util.CreateSuccessResponse(nil))
}

func (s *Service) UpdateProvider(c *gin.Context) {
	var req models.ProviderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}
	caller := Caller(c)
	if err := s.ledger.UpdateProvider(c.Request.Context(), caller, req.Resources, req.PricePerUnit); err != nil {
		writeLedgerError(c, "updating provider "+caller, err)
		return
	}
	logs.GetLogger().Infof("provider updated, address: %s, resources: %d, price: %d", caller, req.Resources, req.PricePerUnit)
	c.JSON(http.StatusOK, util.CreateSuccessResponse(nil))
}

func (s *Service) ListProviders(c *gin.Context) {
	providers, err := s.ledger.ListProviders(c.Request.Context())
	if err != nil {
		writeLedgerError(c, "listing providers", err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(models.ProviderListResp{Providers: providers}))
}

func (s *Service) GetProvider(c *gin.Context) {
	p, err := s.ledger.GetProvider(c.Request.Context(), wallet.NormalizeAddress(c.Param("address")))
	if err != nil {
		writeLedgerError(c, "getting provider", err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(p))
}

func (s *Service) WithdrawEarnings(c *gin.Context) {
	caller := Caller(c)
	amount, err := s.ledger.WithdrawEarnings(c.Request.Context(), caller)
	if err != nil {
		writeLedgerError(c, "withdrawing earnings of "+caller, err)
		return
	}
	logs.GetLogger().Infof("earnings withdrawn, address: %s, amount: %d", caller, amount)
	c.JSON(http.StatusOK, util.CreateSuccessResponse(models.WithdrawResp{Amount: amount}))
}

func (s *Service) AddFunds(c *gin.Context) {
	var req models.FundsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}
	caller := Caller(c)
	if err := s.ledger.AddFunds(c.Request.Context(), caller, req.Amount); err != nil {
		writeLedgerError(c, "adding funds for "+caller, err)
		return
	}
	logs.GetLogger().Infof("funds added, address: %s, amount: %d", caller, req.Amount)
	c.JSON(http.StatusOK, util.CreateSuccessResponse(nil))
}

func (s *Service) GetConsumer(c *gin.Context) {
	consumer, err := s.ledger.GetConsumer(c.Request.Context(), wallet.NormalizeAddress(c.Param("address")))
	if err != nil {
		writeLedgerError(c, "getting consumer", err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(consumer))
}

func (s *Service) RequestCompute(c *gin.Context) {
	var req models.ComputeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}
	caller := Caller(c)
	req.Provider = wallet.NormalizeAddress(req.Provider)
	jobID, err := s.ledger.RequestCompute(c.Request.Context(), caller, req.Provider, req.Resources)
	if err != nil {
		writeLedgerError(c, "requesting compute for "+caller, err)
		return
	}
	logs.GetLogger().Infof("job requested, id: %d, consumer: %s, provider: %s, resources: %d", jobID, caller, req.Provider, req.Resources)
	c.JSON(http.StatusOK, util.CreateSuccessResponse(models.JobCreatedResp{JobID: jobID}))
}

func (s *Service) CompleteJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	caller := Caller(c)
	if err := s.ledger.CompleteJob(c.Request.Context(), caller, jobID); err != nil {
		writeLedgerError(c, "completing job "+c.Param("id"), err)
		return
	}
	logs.GetLogger().Infof("job completed, id: %d, provider: %s", jobID, caller)
	c.JSON(http.StatusOK, util.CreateSuccessResponse(nil))
}

func (s *Service) GetJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	job, err := s.ledger.GetJob(c.Request.Context(), jobID)
	if err != nil {
		writeLedgerError(c, "getting job", err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(job))
}

func (s *Service) ListJobs(c *gin.Context) {
	filter := ledger.JobFilter{
		Provider: wallet.NormalizeAddress(c.Query("provider")),
		Consumer: wallet.NormalizeAddress(c.Query("consumer")),
		Status:   ledger.JobStatus(c.Query("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, "unknown job status: "+string(filter.Status)))
		return
	}
	jobs, err := s.ledger.ListJobs(c.Request.Context(), filter)
	if err != nil {
		writeLedgerError(c, "listing jobs", err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(models.JobListResp{Jobs: jobs}))
}

func jobIDParam(c *gin.Context) (uint64, bool) {
	jobID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, "invalid job id: "+c.Param("id")))
		return 0, false
	}
	return jobID, true
}

func writeLedgerError(c *gin.Context, action string, err error) {
	var me *ledger.MarketError
	if !xerrors.As(err, &me) {
		logs.GetLogger().Errorf("%s failed, error: %v", action, err)
		c.JSON(http.StatusInternalServerError, util.CreateErrorResponse(util.ServerError))
		return
	}
	logs.GetLogger().Warnf("%s rejected: %s", action, me.Kind)
	c.JSON(httpStatus(me), util.CreateErrorResponse(me.Code, me.Message))
}

func httpStatus(me *ledger.MarketError) int {
	switch me {
	case ledger.ErrNotFound:
		return http.StatusNotFound
	case ledger.ErrUnauthorized:
		return http.StatusForbidden
	case ledger.ErrAlreadyExists:
		return http.StatusConflict
	case ledger.ErrInvalidAmount:
		return http.StatusBadRequest
	case ledger.ErrInsufficientBalance:
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}
