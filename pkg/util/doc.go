// Package util 提供并发数据结构相关的子包。
//
// 子包列表：
//   - xrwlock: 可原子降级的读写锁，写锁可不经解锁直接转为读锁，支持 context 超时和非阻塞获取
//   - xshardmap: 分片并发 map，Get/GetMut 返回持锁引用，支持投影、拆分与降级
//
// 设计原则：
//   - 锁的持有以显式句柄表达，Release 幂等
//   - 阻塞操作接受 context.Context
//   - 编程错误（使用已转移的引用、nil 投影函数）直接 panic
package util
