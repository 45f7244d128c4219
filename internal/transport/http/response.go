package httptransport

import "github.com/gin-gonic/gin"

// APIResponse is the common JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Reason  string      `json:"reason,omitempty"`
}

// RespondSuccess writes a successful envelope.
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}

	resp := APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondError writes a failed envelope.
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	resp := APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondRejection writes an authorization failure carrying its reason and
// aborts the handler chain.
func RespondRejection(c *gin.Context, httpStatus int, reason, message string) {
	c.AbortWithStatusJSON(httpStatus, APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Reason:  reason,
	})
}
