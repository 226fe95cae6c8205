package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/common/middleware"
	"raffle-backend/internal/features/raffle/service"
)

type RaffleHandler struct {
	engine *service.Engine
}

func NewRaffleHandler(engine *service.Engine) *RaffleHandler {
	return &RaffleHandler{engine: engine}
}

// RegisterRoutes mounts the user routes on router and the admin routes under /admin.
// router must already authenticate the caller.
func (h *RaffleHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/denominations", h.getDenominations)
	router.GET("/denominations/:value/tickets", h.getAvailableTickets)
	router.GET("/payment-instructions", h.getPaymentInstructions)
	router.GET("/draws", h.getDraws)
	router.GET("/draws/archive", h.getArchivedDraws)

	me := router.Group("/me")
	{
		me.POST("", h.register)
		me.GET("", h.getMe)
		me.GET("/tickets", h.getMyTickets)
		me.POST("/referral/claim", h.claimReferral)
	}

	router.POST("/purchases", h.submitPayment)

	admin := router.Group("/admin", middleware.RequireAdmin(h.engine.Verification))
	{
		admin.GET("/payments", h.listPendingPayments)
		admin.POST("/payments/:id/verify", h.verifyPayment)
		admin.POST("/payments/:id/reject", h.rejectPayment)
		admin.POST("/verify", h.verifyByTicket)
		admin.POST("/draws/:denomination", h.forceDraw)
		admin.POST("/rounds/init", h.initRounds)
	}
}

func denominationParam(c *gin.Context, name string) (int, error) {
	den, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, apperrors.NewValidationError(name, "must be an integer")
	}
	return den, nil
}

func bindError(err error) error {
	return apperrors.Wrap(err, apperrors.ErrCodeValidation, "Invalid request body")
}

// @Summary Номиналы и состояние пулов
// @Tags raffle
// @Produce json
// @Security TelegramInitData
// @Success 200 {object} DenominationsResponse
// @Failure 503 {object} middleware.ErrorResponse
// @Router /denominations [get]
func (h *RaffleHandler) getDenominations(c *gin.Context) {
	stats, err := h.engine.Pool.AllStats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	settings := h.engine.Settings
	resp := DenominationsResponse{
		Denominations:             make([]DenominationResponse, 0, len(stats)),
		LoyaltyThreshold:          settings.LoyaltyThreshold,
		ReferralThreshold:         settings.ReferralThreshold,
		ReferralBonusDenomination: settings.ReferralBonusDenomination,
	}
	for _, s := range stats {
		resp.Denominations = append(resp.Denominations, DenominationResponse{
			Denomination: s.Denomination,
			RoundID:      s.RoundID,
			PoolSize:     s.PoolSize,
			Available:    s.Available,
			Sold:         s.Sold,
			Prizes:       settings.Rewards[s.Denomination],
		})
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Свободные билеты номинала
// @Tags raffle
// @Produce json
// @Security TelegramInitData
// @Param value path int true "Номинал"
// @Success 200 {object} AvailableTicketsResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Router /denominations/{value}/tickets [get]
func (h *RaffleHandler) getAvailableTickets(c *gin.Context) {
	den, err := denominationParam(c, "value")
	if err != nil {
		_ = c.Error(err)
		return
	}
	numbers, err := h.engine.Pool.AvailableNumbers(c.Request.Context(), den)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if numbers == nil {
		numbers = []int{}
	}
	c.JSON(http.StatusOK, AvailableTicketsResponse{Denomination: den, Numbers: numbers})
}

// @Summary Реквизиты для оплаты
// @Tags raffle
// @Produce json
// @Security TelegramInitData
// @Success 200 {object} models.PaymentInstructions
// @Router /payment-instructions [get]
func (h *RaffleHandler) getPaymentInstructions(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Raffle.PaymentInstructions())
}

// @Summary Последние розыгрыши
// @Tags raffle
// @Produce json
// @Security TelegramInitData
// @Param denomination query int false "Номинал (по умолчанию все)"
// @Param limit query int false "Количество"
// @Success 200 {object} DrawsResponse
// @Router /draws [get]
func (h *RaffleHandler) getDraws(c *gin.Context) {
	den, _ := strconv.Atoi(c.Query("denomination"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	draws, err := h.engine.Draws.RecentDraws(c.Request.Context(), den, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, DrawsResponse{Draws: draws})
}

// @Summary Архив розыгрышей
// @Tags raffle
// @Produce json
// @Security TelegramInitData
// @Param denomination query int false "Номинал (по умолчанию все)"
// @Param limit query int false "Количество"
// @Success 200 {object} DrawsResponse
// @Router /draws/archive [get]
func (h *RaffleHandler) getArchivedDraws(c *gin.Context) {
	den, _ := strconv.Atoi(c.Query("denomination"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	draws, err := h.engine.Draws.ArchivedDraws(c.Request.Context(), den, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, DrawsResponse{Draws: draws})
}

// @Summary Регистрация пользователя
// @Description Создаёт аккаунт при первом обращении. Реферальный код учитывается только при создании.
// @Tags me
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param input body RegisterRequest false "Реферальный код"
// @Success 200 {object} AccountResponse
// @Router /me [post]
func (h *RaffleHandler) register(c *gin.Context) {
	user, ok := middleware.TelegramUser(c)
	if !ok {
		_ = c.Error(apperrors.NewUnauthorizedError("Telegram init data required"))
		return
	}
	var req RegisterRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(bindError(err))
			return
		}
	}
	acc, created, err := h.engine.Accounts.GetOrCreate(c.Request.Context(), service.Profile{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
	}, req.ReferralCode)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, AccountResponse{Account: acc, Created: created})
}

// @Summary Мой аккаунт
// @Tags me
// @Produce json
// @Security TelegramInitData
// @Success 200 {object} models.Account
// @Failure 404 {object} middleware.ErrorResponse
// @Router /me [get]
func (h *RaffleHandler) getMe(c *gin.Context) {
	acc, err := h.engine.Accounts.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// @Summary Мои билеты
// @Tags me
// @Produce json
// @Security TelegramInitData
// @Success 200 {object} service.UserHistory
// @Router /me/tickets [get]
func (h *RaffleHandler) getMyTickets(c *gin.Context) {
	history, err := h.engine.Raffle.History(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// @Summary Получить реферальный бонус
// @Tags me
// @Produce json
// @Security TelegramInitData
// @Success 200 {object} service.PurchaseOutcome
// @Failure 403 {object} middleware.ErrorResponse "Недостаточно приглашённых"
// @Failure 409 {object} middleware.ErrorResponse "Бонус уже получен"
// @Router /me/referral/claim [post]
func (h *RaffleHandler) claimReferral(c *gin.Context) {
	out, err := h.engine.Raffle.ClaimReferralBonus(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary Отправить подтверждение оплаты
// @Description Билет должен быть свободен; продажа фиксируется после проверки администратором.
// @Tags purchases
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param input body SubmitPaymentRequest true "Билет и подтверждение"
// @Success 201 {object} models.PendingPayment
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /purchases [post]
func (h *RaffleHandler) submitPayment(c *gin.Context) {
	var req SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	payment, err := h.engine.Raffle.SubmitPayment(c.Request.Context(), middleware.UserID(c), req.Denomination, req.TicketNumber, req.ProofRef)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

// @Summary Ожидающие проверки платежи
// @Tags admin
// @Produce json
// @Security TelegramInitData
// @Success 200 {object} PendingPaymentsResponse
// @Failure 401 {object} middleware.ErrorResponse
// @Router /admin/payments [get]
func (h *RaffleHandler) listPendingPayments(c *gin.Context) {
	payments, err := h.engine.Verification.ListPending(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, PendingPaymentsResponse{Payments: payments})
}

// @Summary Подтвердить платёж
// @Tags admin
// @Produce json
// @Security TelegramInitData
// @Param id path string true "ID платежа"
// @Success 200 {object} service.VerificationResult
// @Failure 409 {object} middleware.ErrorResponse "Билет уже продан или платёж обработан"
// @Router /admin/payments/{id}/verify [post]
func (h *RaffleHandler) verifyPayment(c *gin.Context) {
	res, err := h.engine.Verification.Verify(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Отклонить платёж
// @Tags admin
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param id path string true "ID платежа"
// @Param input body RejectPaymentRequest true "Причина"
// @Success 200 {object} models.PendingPayment
// @Router /admin/payments/{id}/reject [post]
func (h *RaffleHandler) rejectPayment(c *gin.Context) {
	var req RejectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	payment, err := h.engine.Verification.Reject(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// @Summary Подтвердить платёж по билету
// @Tags admin
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param input body VerifyTicketRequest true "Покупатель и билет"
// @Success 200 {object} service.VerificationResult
// @Router /admin/verify [post]
func (h *RaffleHandler) verifyByTicket(c *gin.Context) {
	var req VerifyTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	res, err := h.engine.Verification.VerifyByTicket(c.Request.Context(), middleware.UserID(c), req.BuyerID, req.TicketNumber, req.Denomination)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Принудительный розыгрыш
// @Tags admin
// @Produce json
// @Security TelegramInitData
// @Param denomination path int true "Номинал"
// @Success 200 {object} models.Draw
// @Failure 422 {object} middleware.ErrorResponse "Недостаточно участников"
// @Router /admin/draws/{denomination} [post]
func (h *RaffleHandler) forceDraw(c *gin.Context) {
	den, err := denominationParam(c, "denomination")
	if err != nil {
		_ = c.Error(err)
		return
	}
	draw, err := h.engine.Draws.ForceDraw(c.Request.Context(), den)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, draw)
}

// @Summary Инициализировать раунды
// @Description Создаёт недостающие или неполные раунды всех номиналов.
// @Tags admin
// @Produce json
// @Security TelegramInitData
// @Success 200 {object} PoolStatsResponse
// @Router /admin/rounds/init [post]
func (h *RaffleHandler) initRounds(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.engine.Pool.InitializeAll(ctx); err != nil {
		_ = c.Error(err)
		return
	}
	stats, err := h.engine.Pool.AllStats(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, PoolStatsResponse{Pools: stats})
}
