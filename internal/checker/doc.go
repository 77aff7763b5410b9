// Package checker 是相关性检查的入口：保持本地基线与平台名册同步，
// 获取候选自身的收益序列和元数据，并把本地或远程的相关性结果按阈值分类。
//
// 批量检查还会计算候选之间的相关性，并把它们分组为提交簇。
package checker
