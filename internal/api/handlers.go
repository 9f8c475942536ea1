package api

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"sparkchat/internal/auth"
	"sparkchat/internal/chat"
	"sparkchat/internal/conversation"
	"sparkchat/internal/models"
	"sparkchat/internal/music"
	"sparkchat/internal/personality"
	"sparkchat/internal/redis"
	"sparkchat/internal/usage"
)

// maxImageBytes caps decoded image payloads on chat turns.
const maxImageBytes = 8 << 20

// Handler wires HTTP routes to the chat, music, and billing services.
type Handler struct {
	catalog    *personality.Catalog
	convStore  *conversation.Store
	manager    *chat.Manager
	library    *music.Library
	usageStore *usage.Store
	gate       *usage.Gate
	auth       *auth.Service
	cache      *redis.Client
}

// NewHandler constructs a Handler instance.
func NewHandler(
	catalog *personality.Catalog,
	convStore *conversation.Store,
	manager *chat.Manager,
	library *music.Library,
	usageStore *usage.Store,
	gate *usage.Gate,
	authService *auth.Service,
	cache *redis.Client,
) *Handler {
	return &Handler{
		catalog:    catalog,
		convStore:  convStore,
		manager:    manager,
		library:    library,
		usageStore: usageStore,
		gate:       gate,
		auth:       authService,
		cache:      cache,
	}
}

// check token userID is match with param userID
func (h *Handler) requirePathUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c)
		if !ok || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		paramID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || paramID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if paramID != userID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user mismatch"})
			return
		}
		c.Next()
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

// pathPersonality resolves the personality_id path param, rejecting ids
// that are not in the catalog.
func (h *Handler) pathPersonality(c *gin.Context) (string, bool) {
	id := c.Param("personality_id")
	if !h.catalog.Exists(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown personality"})
		return "", false
	}
	return id, true
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/personalities", h.listPersonalities)
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)
	authMW := h.auth.Middleware()
	userRoutes := api.Group("/users/:id")
	userRoutes.Use(authMW, h.requirePathUser(), h.auth.CSRFMiddleware())
	userRoutes.GET("/chat/:personality_id/messages", h.getMessages)
	userRoutes.DELETE("/chat/:personality_id/messages", h.clearMessages)
	userRoutes.POST("/chat/:personality_id/turn", h.postTurn)
	userRoutes.POST("/messages/:message_id/bookmark", h.toggleBookmark)
	userRoutes.POST("/music/generate", h.generateMusic)
	userRoutes.GET("/music/library", h.listTracks)
	userRoutes.GET("/music/library/:track_id/audio", h.downloadTrack)
	userRoutes.DELETE("/music/library/:track_id", h.deleteTrack)
	userRoutes.GET("/music/usage", h.getUsage)
	userRoutes.POST("/billing/confirm", h.confirmPremium)
	userRoutes.POST("/logout", h.logoutUser)
	userRoutes.DELETE("", h.deleteUser)
}

func (h *Handler) listPersonalities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"personalities": h.catalog.All()})
}

// User create&login interface
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

func (h *Handler) getMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	personalityID, ok := h.pathPersonality(c)
	if !ok {
		return
	}
	msgs, err := h.convStore.History(c.Request.Context(), userID, personalityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) clearMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	personalityID, ok := h.pathPersonality(c)
	if !ok {
		return
	}
	if err := h.convStore.Clear(c.Request.Context(), userID, personalityID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type turnRequest struct {
	Content     string `json:"content"`
	ImageBase64 string `json:"image_base64"`
	ImageMime   string `json:"image_mime"`
}

func (h *Handler) postTurn(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	personalityID, ok := h.pathPersonality(c)
	if !ok {
		return
	}
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var image []byte
	if req.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image encoding"})
			return
		}
		if len(decoded) > maxImageBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}
		image = decoded
	}
	if strings.TrimSpace(req.Content) == "" && image == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	result, err := h.manager.RunTurn(c.Request.Context(), chat.TurnInput{
		UserID:        userID,
		PersonalityID: personalityID,
		Content:       req.Content,
		Image:         image,
		ImageMime:     req.ImageMime,
	})
	if err != nil {
		if errors.Is(err, chat.ErrTurnInFlight) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) toggleBookmark(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	messageID, err := strconv.ParseInt(c.Param("message_id"), 10, 64)
	if err != nil || messageID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}
	if err := h.convStore.ToggleBookmark(c.Request.Context(), userID, messageID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type generateRequest struct {
	Prompt    string `json:"prompt"`
	RawPrompt bool   `json:"raw_prompt"`
}

func (h *Handler) generateMusic(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	result, err := h.manager.RunMusic(c.Request.Context(), userID, req.Prompt, req.RawPrompt)
	if err != nil {
		h.renderMusicError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) renderMusicError(c *gin.Context, err error) {
	if errors.Is(err, chat.ErrMusicInFlight) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	}

	var limitErr *music.LimitError
	if errors.As(err, &limitErr) {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":          "generation limit reached",
			"reason":         limitErr.Decision.Reason,
			"remaining_free": limitErr.Decision.RemainingFree,
			"action":         "upgrade",
		})
		return
	}

	var genErr *music.GenerationError
	if errors.As(err, &genErr) {
		status := http.StatusBadGateway
		switch genErr.Kind {
		case music.FailureFiltered:
			status = http.StatusUnprocessableEntity
		case music.FailureTimeout:
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": genErr.Message, "kind": genErr.Kind})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (h *Handler) listTracks(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	tracks, err := h.library.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tracks == nil {
		tracks = make([]models.GeneratedTrack, 0)
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks})
}

func (h *Handler) downloadTrack(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	track, err := h.library.Get(c.Request.Context(), userID, c.Param("track_id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "track not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", track.MimeType)
	c.File(track.StoragePath)
}

func (h *Handler) deleteTrack(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.library.Delete(c.Request.Context(), userID, c.Param("track_id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getUsage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	rec, err := h.usageStore.Load(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.gate.Snapshot(rec))
}

// confirmPremium records a completed purchase. Payment verification happens
// upstream; this endpoint only flips the account and announces it.
func (h *Handler) confirmPremium(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	rec, err := h.usageStore.ActivatePremium(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := usage.PublishPremiumActivation(c.Request.Context(), h.cache, userID); err != nil {
		// Local state is already correct; other instances will fall back to
		// the database on cache miss.
		c.Header("X-Billing-Broadcast", "failed")
	}
	c.JSON(http.StatusOK, h.gate.Snapshot(rec))
}

func (h *Handler) logoutUser(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.auth.DeleteUser(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
