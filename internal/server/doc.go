// 版权所有 2024 Roundtable Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理。

Manager 封装 http.Server：Listen 绑定端口，Run 阻塞服务直到 context
结束并优雅关闭，便于 cmd 层用 errgroup 同时运行 API 与 metrics 两个实例。
*/
package server
