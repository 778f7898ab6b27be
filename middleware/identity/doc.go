// Package identity anexa ao contexto do request a identidade do caller
// extraída de um bearer token JWT, quando presente e válido.
//
// O middleware é deliberadamente leniente: token ausente ou inválido apenas
// deixa o request anônimo — autenticar de verdade é papel do serviço de auth
// atrás do gateway. O guard de admissão consome a identidade via CallerID
// para preferir chave por usuário em vez de por IP.
package identity
