package controller

import (
	"profense_backend/internal/service"
	"profense_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QAController struct {
	QAService *service.QAService
}

func NewQAController(qaService *service.QAService) *QAController {
	return &QAController{QAService: qaService}
}

// Ask godoc
// @Summary 快速提问（无会话状态）
// @Tags 问答
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.QuickAskRequest true "问题"
// @Success 200 {object} util.Response{data=service.QuickAskResult} "成功"
// @Failure 502 {object} util.Response "模型服务不可用"
// @Router /api/qa/ask [post]
func (c *QAController) Ask(ctx *gin.Context) {
	var req service.QuickAskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.QAService.Ask(ctx.Request.Context(), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// AskStream godoc
// @Summary 快速提问（SSE流式返回）
// @Tags 问答
// @Accept  json
// @Produce  text/event-stream
// @Security BearerAuth
// @Param   body body service.QuickAskRequest true "问题"
// @Success 200 {string} string "SSE事件流"
// @Router /api/qa/ask/stream [post]
func (c *QAController) AskStream(ctx *gin.Context) {
	var req service.QuickAskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	stream, errChan, safety := c.QAService.AskStream(ctx.Request.Context(), req)

	// 设置SSE响应头
	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Header("Transfer-Encoding", "chunked")

	if safety != nil {
		ctx.SSEvent("safety", safety.Reason)
		ctx.Writer.Flush()
	}

	for content := range stream {
		ctx.SSEvent("message", content)
		ctx.Writer.Flush()
	}

	if err := <-errChan; err != nil {
		ctx.SSEvent("error", err.Error())
		ctx.Writer.Flush()
	}

	ctx.SSEvent("end", "done")
	ctx.Writer.Flush()
}
