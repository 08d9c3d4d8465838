// Package network 定义传输层的连接、传输器与连接名额。
//
// 包括两种实现：
//  1. 基于 netpoll 的事件驱动实现。
//  2. 基于标准库的每连接一协程实现。
package network
