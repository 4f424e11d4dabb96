package errs

// 错误码分段：14xx 客户端、15xx 总线、16xx 订阅解码、17xx 存储
const (
	ValidationCode = 1400
	BusCode        = 1500
	DecodeCode     = 1600
	StorageCode    = 1700
)

var (
	// ErrValidation 客户端载荷缺字段/非法，只回给发起连接
	ErrValidation = NewCodeError(ValidationCode, "validation failed")
	// ErrBusUnavailable 总线连接不可用，重试额度耗尽后返回
	ErrBusUnavailable = NewCodeError(BusCode, "bus unavailable")
	// ErrDecode 总线收到的消息无法解码，跳过该条
	ErrDecode = NewCodeError(DecodeCode, "decode failed")
	// ErrStorage 外部存储协作方失败
	ErrStorage = NewCodeError(StorageCode, "storage failed")
)
