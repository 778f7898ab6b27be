// Package application contém o caso de uso central do controle de admissão:
// dado (key, window, max), decidir se mais um evento pode ser admitido e
// reportar a cota atual.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(ctx, key, limits) retorna uma Decision
// (allowed/limit/remaining/resetAt) ou um erro tipado de store.
package application
