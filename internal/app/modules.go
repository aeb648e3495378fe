package app

import (
	"github.com/vk/jform/internal/handlers"
	"github.com/vk/jform/modules/env_vars"
	"github.com/vk/jform/modules/http_client"
	"github.com/vk/jform/modules/print"
	"github.com/vk/jform/modules/socketio"
)

// coreModules is the definitive list of all modules that are compiled into
// the jform binary.
var coreModules = []handlers.Module{
	&env_vars.Module{},
	&print.Module{},
	&http_client.Module{},
	&socketio.Module{},
}
