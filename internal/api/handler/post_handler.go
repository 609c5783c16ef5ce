package handler

import (
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/solcials-sync/internal/media"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/service"
	"github.com/d60-Lab/solcials-sync/pkg/response"
)

type createPostRequest struct {
	Content string `json:"content" form:"content"`
	ReplyTo string `json:"reply_to" form:"reply_to"`
}

type linkImageRequest struct {
	CNFT string `json:"cnft" binding:"required"`
}

type postView struct {
	model.Post
	Caption  string `json:"caption,omitempty"`
	ImageCID string `json:"image_cid,omitempty"`
}

func viewOf(p model.Post) postView {
	v := postView{Post: p}
	if p.Kind == model.PostKindImage {
		v.Caption, v.ImageCID = media.SplitCaption(p.Content)
	}
	return v
}

func viewsOf(posts []model.Post) []postView {
	out := make([]postView, len(posts))
	for i, p := range posts {
		out[i] = viewOf(p)
	}
	return out
}

// ListPosts 最新帖子
// @Summary 最新帖子
// @Tags 帖子
// @Produce json
// @Param limit query int false "数量" default(20)
// @Success 200 {object} response.Response{data=[]postView}
// @Failure 429 {object} response.Response
// @Router /api/v1/posts [get]
func (h *Handler) ListPosts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	posts, err := h.posts.ListRecent(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, viewsOf(posts))
}

// GetPost 帖子详情
// @Summary 帖子详情
// @Tags 帖子
// @Produce json
// @Param address path string true "帖子地址"
// @Success 200 {object} response.Response{data=postView}
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{address} [get]
func (h *Handler) GetPost(c *gin.Context) {
	addr, ok := parseAddress(c, "address")
	if !ok {
		return
	}
	p, err := h.posts.Get(c.Request.Context(), addr)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, viewOf(*p))
}

// ListUserPosts 某作者的帖子
// @Summary 用户帖子
// @Tags 帖子
// @Produce json
// @Param owner path string true "作者地址"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/users/{owner}/posts [get]
func (h *Handler) ListUserPosts(c *gin.Context) {
	owner, ok := parseAddress(c, "owner")
	if !ok {
		return
	}
	page, pageSize := paging(c)
	posts, err := h.posts.ListByAuthor(c.Request.Context(), owner, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": viewsOf(posts)})
}

// CreatePost 发帖；multipart 带 image 字段时为图片帖
// @Summary 发帖
// @Tags 帖子
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param request body createPostRequest true "帖子内容"
// @Success 200 {object} response.Response{data=service.PostReceipt}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	replyTo, err := parseOptionalAddress(req.ReplyTo)
	if err != nil {
		response.BadRequest(c, "invalid reply_to")
		return
	}

	var receipt *service.PostReceipt
	if file, ferr := c.FormFile("image"); ferr == nil {
		f, err := file.Open()
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		defer f.Close()
		receipt, err = h.postService.CreateImagePost(c.Request.Context(), req.Content, file.Filename, f, replyTo)
		if err != nil {
			fail(c, err)
			return
		}
	} else {
		receipt, err = h.postService.CreateTextPost(c.Request.Context(), req.Content, replyTo)
		if err != nil {
			fail(c, err)
			return
		}
	}
	response.Success(c, receipt)
}

// LinkImage 为图片帖关联压缩 NFT
// @Summary 关联图片 NFT
// @Tags 帖子
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param address path string true "帖子地址"
// @Param request body linkImageRequest true "cNFT 地址"
// @Success 200 {object} response.Response
// @Router /api/v1/posts/{address}/image [post]
func (h *Handler) LinkImage(c *gin.Context) {
	post, ok := parseAddress(c, "address")
	if !ok {
		return
	}
	var req linkImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cnft, err := solana.PublicKeyFromBase58(req.CNFT)
	if err != nil {
		response.BadRequest(c, "invalid cnft")
		return
	}
	sig, err := h.postService.LinkImage(c.Request.Context(), post, cnft)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"signature": sig.String()})
}

// Like 点赞
// @Summary 点赞
// @Tags 帖子
// @Produce json
// @Security BearerAuth
// @Param address path string true "帖子地址"
// @Success 200 {object} response.Response
// @Router /api/v1/posts/{address}/like [post]
func (h *Handler) Like(c *gin.Context) {
	h.toggleLike(c, true)
}

// Unlike 取消点赞
// @Summary 取消点赞
// @Tags 帖子
// @Produce json
// @Security BearerAuth
// @Param address path string true "帖子地址"
// @Success 200 {object} response.Response
// @Router /api/v1/posts/{address}/like [delete]
func (h *Handler) Unlike(c *gin.Context) {
	h.toggleLike(c, false)
}

func (h *Handler) toggleLike(c *gin.Context, like bool) {
	post, ok := parseAddress(c, "address")
	if !ok {
		return
	}
	op := h.relService.Like
	if !like {
		op = h.relService.Unlike
	}
	sig, err := op(c.Request.Context(), post)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, signatureResult(sig))
}

// ListLikes 帖子的点赞用户
// @Summary 点赞列表
// @Tags 帖子
// @Produce json
// @Param address path string true "帖子地址"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/posts/{address}/likes [get]
func (h *Handler) ListLikes(c *gin.Context) {
	post, ok := parseAddress(c, "address")
	if !ok {
		return
	}
	page, pageSize := paging(c)
	likes, err := h.likes.ListByPost(c.Request.Context(), post, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	users := make([]solana.PublicKey, len(likes))
	for i, l := range likes {
		users[i] = l.User
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": users})
}

// signatureResult 幂等操作无需上链时 signature 为空，changed=false
func signatureResult(sig solana.Signature) gin.H {
	if sig.IsZero() {
		return gin.H{"changed": false}
	}
	return gin.H{"changed": true, "signature": sig.String()}
}
