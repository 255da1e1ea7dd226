// Package tlsutil 为所有出站 HTTP 客户端提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
// 模型与检索类 API 共用 SecureHTTPClient 的连接池；网页抓取使用 PageClient，
// 独立连接池并限制重定向次数。
package tlsutil
