package errs

// ===== 业务码 =====
const (
	CodeUnknown = 0

	// 连接准入 1xx
	CodeTokenMissing = 101 // 握手缺少凭证
	CodeTokenInvalid = 102 // 凭证校验失败/无可用主体
	CodeJoinMismatch = 103 // join 的 userId 与鉴权身份不符

	// 存储 2xx
	CodeRecordNotFound = 201
	CodeRecordIsExist  = 202
	CodeStoreFailed    = 203

	// 总线 3xx
	CodePublishFailed = 301
	CodeRouteMissing  = 302
)

// ===== 预定义错误 =====
var (
	ErrTokenMissing   = NewCodeError(CodeTokenMissing, "access token missing")
	ErrTokenInvalid   = NewCodeError(CodeTokenInvalid, "access token invalid")
	ErrJoinMismatch   = NewCodeError(CodeJoinMismatch, "join user mismatch")
	ErrRecordNotFound = NewCodeError(CodeRecordNotFound, "record not found")
	ErrRecordIsExist  = NewCodeError(CodeRecordIsExist, "record is exist")
	ErrStoreFailed    = NewCodeError(CodeStoreFailed, "store operation failed")
	ErrPublishFailed  = NewCodeError(CodePublishFailed, "publish failed")
	ErrRouteMissing   = NewCodeError(CodeRouteMissing, "route not found")
)
