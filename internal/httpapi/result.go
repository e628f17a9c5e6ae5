package httpapi

// ErrorBody 错误响应：{"message": "...", "deviceId": "..."}
// 实时读取超时等响应体与前端约定一致
type ErrorBody struct {
	Message  string `json:"message"`
	DeviceID string `json:"deviceId,omitempty"`
}

// PredictBody 预测接口失败响应
type PredictBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

const (
	MsgRealtimeTimeout = "Timeout: no response from device"
	MsgCommandFailed   = "Failed to send read command to device"
	MsgSuperseded      = "Superseded by a newer realtime request"
	MsgUnauthorized    = "Authentication required"
	MsgForbidden       = "forbidden"
	MsgNotFound        = "not found"
	MsgInternal        = "internal error"
)

func Fail(message string) ErrorBody {
	return ErrorBody{Message: message}
}

func FailDevice(message, deviceID string) ErrorBody {
	return ErrorBody{Message: message, DeviceID: deviceID}
}
