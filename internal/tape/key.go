package tape

// Key 唯一定位一条录音：完整的 path+query 与请求方法，不受 Header/Body 影响。
type Key struct {
	PathAndQuery string
	Method       string
}

// NewKey 由 path+query 与 method 构建 Key，空路径视为 "/"。
func NewKey(pathAndQuery, method string) Key {
	if pathAndQuery == "" {
		pathAndQuery = "/"
	}
	return Key{PathAndQuery: pathAndQuery, Method: method}
}

// String 输出 "METHOD path" 形式，便于日志与锁表使用。
func (k Key) String() string {
	return k.Method + " " + k.PathAndQuery
}
