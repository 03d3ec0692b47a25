package v1

import (
	"io"
	"net/http"

	"go-marketplace-backend/internal/delivery/http/response"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"
	"go-marketplace-backend/pkg/security"

	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	profileUC domain.ProfileUsecase
}

func NewProfileHandler(protected *gin.RouterGroup, profileUC domain.ProfileUsecase, uploadLimit gin.HandlerFunc) {
	handler := &ProfileHandler{profileUC: profileUC}

	p := protected.Group("/profile")
	{
		p.GET("", handler.Get)
		p.PATCH("", handler.Update)
		p.PUT("/avatar", orNoop(uploadLimit), handler.UploadAvatar)
	}
}

// Get godoc
// @Summary      Get own profile
// @Tags         profile
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=domain.UserProfile}
// @Failure      404  {object}  response.Response
// @Router       /profile [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	profile, err := h.profileUC.GetProfile(c, callerID(c))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Profile retrieved", profile)
}

// Update godoc
// @Summary      Update own profile
// @Description  Same merge rules as the session update; the profiles row is the target.
// @Tags         profile
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        update  body      domain.UserUpdate  true  "Fields to change"
// @Success      200     {object}  response.Response{data=domain.UserProfile}
// @Failure      400     {object}  response.Response
// @Router       /profile [patch]
func (h *ProfileHandler) Update(c *gin.Context) {
	var update domain.UserUpdate
	if !bindJSON(c, &update) {
		return
	}

	profile, err := h.profileUC.UpdateProfile(c, callerID(c), update)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Profile updated", profile)
}

// UploadAvatar godoc
// @Summary      Upload avatar
// @Description  JPEG, PNG or WebP up to 5MB. Stored as a 256px JPEG.
// @Tags         profile
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        avatar  formData  file  true  "Image"
// @Success      200     {object}  response.Response
// @Failure      400     {object}  response.Response
// @Router       /profile/avatar [put]
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, security.MaxAvatarBytes+64*1024)

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		c.Error(apperror.BadRequest("An image file is required in the 'avatar' field"))
		return
	}
	if fileHeader.Size > security.MaxAvatarBytes {
		c.Error(apperror.BadRequest("File is too large (max 5MB)"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.Error(apperror.BadRequest("Could not read upload"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, security.MaxAvatarBytes+1))
	if err != nil {
		c.Error(apperror.BadRequest("Could not read upload"))
		return
	}

	url, err := h.profileUC.UploadAvatar(c, callerID(c), fileHeader.Filename, data)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Avatar updated", gin.H{"avatar": url})
}
