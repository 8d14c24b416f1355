package controller

import (
	"profense_backend/internal/service"
	"profense_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AssessmentController struct {
	AssessmentService *service.AssessmentService
}

func NewAssessmentController(assessmentService *service.AssessmentService) *AssessmentController {
	return &AssessmentController{AssessmentService: assessmentService}
}

// Generate godoc
// @Summary 生成测验
// @Description 基于学科/主题（可选会话上下文）调用模型生成题目，解析失败时返回标记过的占位题目
// @Tags 测验
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.GenerateRequest true "生成请求"
// @Success 201 {object} util.Response{data=model.Assessment} "创建成功"
// @Failure 502 {object} util.Response "模型服务不可用"
// @Router /api/assessments/generate [post]
func (c *AssessmentController) Generate(ctx *gin.Context) {
	var req service.GenerateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	assessment, err := c.AssessmentService.Generate(ctx.Request.Context(), claims.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, assessment)
}

// Get godoc
// @Summary 获取测验详情
// @Description 创建者看到完整题目；其他学习者看到去除答案的学生视图
// @Tags 测验
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "测验ID"
// @Success 200 {object} util.Response{data=model.Assessment} "成功"
// @Failure 404 {object} util.Response "测验不存在"
// @Router /api/assessments/{id} [get]
func (c *AssessmentController) Get(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	assessment, err := c.AssessmentService.Get(ctx.Param("id"), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, assessment)
}

// List godoc
// @Summary 分页获取当前用户创建的测验
// @Tags 测验
// @Produce  json
// @Security BearerAuth
// @Param   page query int false "页码，默认1"
// @Param   limit query int false "每页数量，默认20"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/assessments [get]
func (c *AssessmentController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	page, limit := pagination(ctx)

	assessments, total, err := c.AssessmentService.List(claims.UserID, limit, (page-1)*limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: assessments, Total: total, Page: page, Limit: limit})
}

// StartAttempt godoc
// @Summary 开始一次作答
// @Tags 测验
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "测验ID"
// @Success 201 {object} util.Response{data=model.AssessmentAttempt} "创建成功"
// @Failure 409 {object} util.Response "已达到最大作答次数"
// @Router /api/assessments/{id}/attempts [post]
func (c *AssessmentController) StartAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	attempt, err := c.AssessmentService.StartAttempt(ctx.Param("id"), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, attempt)
}

type submitAttemptRequest struct {
	Answers []service.SubmittedAnswer `json:"answers" binding:"required"`
}

// SubmitAttempt godoc
// @Summary 提交作答并评分
// @Tags 测验
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "作答ID"
// @Param   body body submitAttemptRequest true "答案列表"
// @Success 200 {object} util.Response{data=service.AttemptResult} "成功"
// @Failure 404 {object} util.Response "作答不存在"
// @Router /api/attempts/{id}/submit [post]
func (c *AssessmentController) SubmitAttempt(ctx *gin.Context) {
	var req submitAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	result, err := c.AssessmentService.SubmitAttempt(ctx.Param("id"), claims.UserID, req.Answers)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// AbandonAttempt godoc
// @Summary 放弃作答
// @Tags 测验
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "作答ID"
// @Success 200 {object} util.Response{data=model.AssessmentAttempt} "成功"
// @Router /api/attempts/{id}/abandon [post]
func (c *AssessmentController) AbandonAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	attempt, err := c.AssessmentService.Abandon(ctx.Param("id"), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// Attempts godoc
// @Summary 获取当前用户在某测验下的作答记录
// @Tags 测验
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "测验ID"
// @Success 200 {object} util.Response{data=[]model.AssessmentAttempt} "成功"
// @Router /api/assessments/{id}/attempts [get]
func (c *AssessmentController) Attempts(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	attempts, err := c.AssessmentService.Attempts(ctx.Param("id"), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}
