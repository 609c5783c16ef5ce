package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/pkg/response"
)

// GetProfile 用户资料
// @Summary 用户资料
// @Tags 用户
// @Produce json
// @Param owner path string true "钱包地址"
// @Success 200 {object} response.Response{data=model.UserProfile}
// @Failure 404 {object} response.Response
// @Router /api/v1/users/{owner}/profile [get]
func (h *Handler) GetProfile(c *gin.Context) {
	owner, ok := parseAddress(c, "owner")
	if !ok {
		return
	}
	p, err := h.profileService.Get(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, p)
}

// UpdateProfile 修改当前钱包的资料，资料不存在时先创建
// @Summary 修改资料
// @Tags 用户
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.ProfileUpdate true "待修改字段"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/users/me/profile [put]
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req model.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sig, err := h.profileService.Update(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, signatureResult(sig))
}

// ResolveMedia 返回可用网关上的内容地址
// @Summary 解析图片地址
// @Tags 媒体
// @Produce json
// @Param cid path string true "内容标识"
// @Success 200 {object} response.Response{data=map[string]string}
// @Failure 404 {object} response.Response
// @Router /api/v1/media/{cid} [get]
func (h *Handler) ResolveMedia(c *gin.Context) {
	url, err := h.resolver.Resolve(c.Request.Context(), c.Param("cid"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"url": url})
}
