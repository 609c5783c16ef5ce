package handler

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/solcials-sync/pkg/response"
)

type followRequest struct {
	Target string `json:"target" binding:"required"`
}

func bindTarget(c *gin.Context) (solana.PublicKey, bool) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return solana.PublicKey{}, false
	}
	target, err := solana.PublicKeyFromBase58(req.Target)
	if err != nil {
		response.BadRequest(c, "invalid target")
		return solana.PublicKey{}, false
	}
	return target, true
}

// Follow 关注用户（目标须已创建资料）
// @Summary 关注用户
// @Tags 关系链
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body followRequest true "关注目标"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/relations/follow [post]
func (h *Handler) Follow(c *gin.Context) {
	target, ok := bindTarget(c)
	if !ok {
		return
	}
	sig, err := h.relService.Follow(c.Request.Context(), target)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, signatureResult(sig))
}

// Unfollow 取消关注
// @Summary 取消关注
// @Tags 关系链
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body followRequest true "取消关注目标"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/relations/unfollow [post]
func (h *Handler) Unfollow(c *gin.Context) {
	target, ok := bindTarget(c)
	if !ok {
		return
	}
	sig, err := h.relService.Unfollow(c.Request.Context(), target)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, signatureResult(sig))
}

// ListFollowing 查询某用户关注的人
// @Summary 查询关注列表
// @Tags 关系链
// @Param user_id path string true "用户地址"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/relations/{user_id}/following [get]
func (h *Handler) ListFollowing(c *gin.Context) {
	user, ok := parseAddress(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := paging(c)
	list, err := h.relService.ListFollowing(c.Request.Context(), user, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// ListFans 查询某用户的粉丝
// @Summary 查询粉丝列表
// @Tags 关系链
// @Param user_id path string true "用户地址"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/relations/{user_id}/fans [get]
func (h *Handler) ListFans(c *gin.Context) {
	user, ok := parseAddress(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := paging(c)
	list, err := h.relService.ListFans(c.Request.Context(), user, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// IsFollowing 判断 user_id 是否关注了 target
// @Summary 是否关注
// @Tags 关系链
// @Param user_id path string true "关注者地址"
// @Param target path string true "被关注者地址"
// @Success 200 {object} response.Response{data=map[string]bool}
// @Router /api/v1/relations/{user_id}/follows/{target} [get]
func (h *Handler) IsFollowing(c *gin.Context) {
	user, ok := parseAddress(c, "user_id")
	if !ok {
		return
	}
	target, ok := parseAddress(c, "target")
	if !ok {
		return
	}
	following, err := h.relService.IsFollowing(c.Request.Context(), user, target)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"following": following})
}
