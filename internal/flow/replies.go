package flow

import "fmt"

const (
	ReplyAskContact        = "Olá! Vamos liberar seu teste grátis. Qual é o seu número de WhatsApp com DDD?"
	ReplyInvalidContact    = "Número inválido. Envie seu WhatsApp com DDD, apenas números (10 ou 11 dígitos)."
	ReplyAskPIN            = "Perfeito! Agora escolha uma senha de exatamente 2 dígitos."
	ReplyInvalidPIN        = "A senha precisa ter exatamente 2 dígitos. Tente novamente."
	ReplyCredentialsFailed = "Não conseguimos gerar seu teste agora. Tente novamente em instantes enviando sua senha de 2 dígitos."
	ReplyHandoff           = "Tudo pronto! Um atendente vai continuar seu atendimento por aqui."
)

// ReplyCredentials apresenta o acesso emitido com a chamada para instalar o app
func ReplyCredentials(c Credentials) string {
	return fmt.Sprintf("Seu teste foi gerado!\n\nUsuário: %s\nSenha: %s\nURL: %s\n\nClique em \"Instalar aplicativo\" para continuar.",
		c.Username, c.Password, c.URL)
}

// ReplyAlreadyIssued is shown when the contact already got a trial recently
func ReplyAlreadyIssued(c Credentials) string {
	return fmt.Sprintf("Você já gerou um teste recentemente. Seguem seus dados de acesso:\n\nUsuário: %s\nSenha: %s\nURL: %s",
		c.Username, c.Password, c.URL)
}
