package controller

import (
	"strconv"

	"profense_backend/internal/service"
	"profense_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SessionController struct {
	SessionService *service.SessionService
}

func NewSessionController(sessionService *service.SessionService) *SessionController {
	return &SessionController{SessionService: sessionService}
}

// Chat godoc
// @Summary 发送一轮对话
// @Description 处理一轮辅导对话：审核、安全过滤、模型调用并保存会话
// @Tags 会话
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.TurnRequest true "对话内容，sessionId 为空时创建新会话"
// @Success 200 {object} util.Response{data=service.TurnResult} "成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 429 {object} util.Response "该会话的上一轮仍在处理中"
// @Failure 502 {object} util.Response "模型服务不可用"
// @Router /api/sessions/chat [post]
func (c *SessionController) Chat(ctx *gin.Context) {
	var req service.TurnRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	result, err := c.SessionService.ProcessTurn(ctx.Request.Context(), claims.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Get godoc
// @Summary 获取会话详情
// @Tags 会话
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.ConversationSession} "成功"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/sessions/{id} [get]
func (c *SessionController) Get(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	sess, err := c.SessionService.Get(ctx.Request.Context(), ctx.Param("id"), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, sess)
}

// List godoc
// @Summary 分页获取当前用户的会话列表
// @Tags 会话
// @Produce  json
// @Security BearerAuth
// @Param   page query int false "页码，默认1"
// @Param   limit query int false "每页数量，默认20"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/sessions [get]
func (c *SessionController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	page, limit := pagination(ctx)

	summaries, total, err := c.SessionService.List(claims.UserID, limit, (page-1)*limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: summaries, Total: total, Page: page, Limit: limit})
}

// Pause godoc
// @Summary 暂停会话
// @Tags 会话
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.ConversationSession} "成功"
// @Router /api/sessions/{id}/pause [post]
func (c *SessionController) Pause(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	sess, err := c.SessionService.Pause(ctx.Param("id"), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, sess)
}

// Resume godoc
// @Summary 恢复已暂停的会话
// @Tags 会话
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.ConversationSession} "成功"
// @Router /api/sessions/{id}/resume [post]
func (c *SessionController) Resume(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	sess, err := c.SessionService.Resume(ctx.Param("id"), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, sess)
}

// Complete godoc
// @Summary 结束会话
// @Tags 会话
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.ConversationSession} "成功"
// @Router /api/sessions/{id}/complete [post]
func (c *SessionController) Complete(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	sess, err := c.SessionService.Complete(ctx.Param("id"), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, sess)
}

// Archive godoc
// @Summary 归档会话
// @Description 归档后的会话不可再修改，成绩单会上传到对象存储
// @Tags 会话
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.ConversationSession} "成功"
// @Router /api/sessions/{id}/archive [post]
func (c *SessionController) Archive(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	sess, err := c.SessionService.Archive(ctx.Request.Context(), ctx.Param("id"), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, sess)
}

func pagination(ctx *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
