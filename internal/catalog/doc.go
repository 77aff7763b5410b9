// Package catalog 管理平台静态目录数据（算子、数据集、模拟设置选项）的本地缓存。
//
// 每类数据对应一个 Category：决定缓存目录、存储形态（表格或 JSON）与默认 TTL，
// 配置中的 [[Category]] 可以按名字覆盖 TTL。Service 负责“先读缓存、未命中再请求平台、写回缓存”。
package catalog
