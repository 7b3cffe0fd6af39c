package xrwlock_test

import (
	"context"
	"fmt"

	"github.com/omeyang/xshard/pkg/util/xrwlock"
)

func ExampleWriteGuard_Downgrade() {
	rw := xrwlock.New()
	config := map[string]string{}

	w, err := rw.Lock(context.Background())
	if err != nil {
		panic(err)
	}
	config["mode"] = "active"

	// 写入后立即降级，读取自己刚写入的值时不会有其他写者插入
	r, err := w.Downgrade()
	if err != nil {
		panic(err)
	}
	fmt.Println("mode:", config["mode"])

	_, writable := rw.TryLock()
	fmt.Println("writer admitted:", writable)

	if err := r.Release(); err != nil {
		panic(err)
	}
	// Output:
	// mode: active
	// writer admitted: false
}
