// Package main 启动 Minerva 服务.
package main

import "github.com/yeisme/minerva/pkg/cmd"

//	@title			Minerva API
//	@version		1.0
//	@description	Minerva 是一个多维显微图像金字塔的存储、权限与瓦片渲染服务.

//	@license.name	MIT
//	@license.url	https://opensource.org/license/mit/

//	@contact.name	yeisme
//	@contact.email	yefun2004@gmail.com.

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization

func main() {
	if err := cmd.Execute(); err != nil {
		panic(err)
	}
}
