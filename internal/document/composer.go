// Package document implements the infraction document text pipeline: prompt
// composition, reply cleanup, post-processing and structured parsing.
package document

import (
	"fmt"
	"strings"

	"github.com/sindicoapp/sindico/internal/models"
)

// Defaults used when the guided flow does not identify the resident.
const (
	DefaultResidentName = "Morador(a) responsável"
	DefaultUnit         = "Unidade não especificada"
)

// Occurrence is the infraction data fed to the prompt composer.
type Occurrence struct {
	ResidentName string
	Block        string
	Unit         string
	Date         string // as collected, YYYY-MM-DD
	Description  string
	Value        float64 // fines only
}

// FormatDate converts an ISO date (YYYY-MM-DD) to the Brazilian display form
// (DD/MM/YYYY). Inputs that do not match are returned unchanged.
func FormatDate(date string) string {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return date
	}
	return parts[2] + "/" + parts[1] + "/" + parts[0]
}

// FormatValue renders a monetary amount with two decimals and a comma
// separator, e.g. 200 becomes "200,00".
func FormatValue(value float64) string {
	return strings.Replace(fmt.Sprintf("%.2f", value), ".", ",", 1)
}

// ComposePrompt builds the generation prompt for the given document type.
func ComposePrompt(docType models.DocumentType, occ Occurrence) string {
	name := occ.ResidentName
	if name == "" {
		name = DefaultResidentName
	}
	unit := occ.Unit
	if unit == "" {
		unit = DefaultUnit
	}
	blockPart := ""
	if occ.Block != "" {
		blockPart = fmt.Sprintf("do Bloco %s, ", occ.Block)
	}

	if docType == models.DocumentAdvertencia {
		return fmt.Sprintf(advertenciaPromptTemplate, name, blockPart, unit, FormatDate(occ.Date), occ.Description)
	}
	return fmt.Sprintf(multaPromptTemplate, FormatValue(occ.Value), name, blockPart, unit, FormatDate(occ.Date), occ.Description)
}

// FallbackSystemPrompt builds the system instruction used by the stateless
// fallback completion, naming the condominium the assistant represents.
func FallbackSystemPrompt(condominiumName string, docType models.DocumentType) string {
	if condominiumName == "" {
		condominiumName = "Condomínio"
	}
	kind := "advertência"
	if docType == models.DocumentMulta {
		kind = "multa"
	}
	return fmt.Sprintf(`Você é um especialista em elaborar documentos formais para o %s. `+
		`Com base na descrição da ocorrência, sua tarefa é identificar a regra ESPECÍFICA do regimento interno deste condomínio que foi violada `+
		`e elaborar um documento formal de %s seguindo a estrutura `+
		`oficial dos documentos de condomínio. NÃO use artigos genéricos como "Art. 58º" ou outros, `+
		`apenas cite artigos que existem realmente no regimento interno deste condomínio específico.`, condominiumName, kind)
}

const legalReferencesSection = `REFERÊNCIAS PARA IDENTIFICAÇÃO CORRETA DOS ARTIGOS:

a) Lei de Condomínio nº 4.591/64 (lei federal que regulamenta condomínios):
   - Art. 10 - É defeso a qualquer condômino: I - alterar a forma externa da fachada; II - decorar as partes e esquadriais externas com tonalidades ou côres diversas das empregadas no conjunto da edificação; III - destinar a unidade a utilização diversa de finalidade do prédio, ou usá-la de forma nociva ou perigosa ao sossêgo, à salubridade e à segurança dos demais condôminos; IV - embaraçar o uso das partes comuns.
   - Art. 19 - Cada condômino tem o direito de usar e fruir, com exclusividade, de sua unidade autônoma, segundo suas conveniências e interêsses, condicionados, umas e outros às normas de boa vizinhança, e poderá usar as partes e coisas comuns de maneira a não causar dano ou incômodo aos demais condôminos ou moradores, nem obstáculo ou embaraço ao bom uso das mesmas partes por todos.

b) Convenção do Condomínio (documento específico elaborado e registrado para este condomínio):
   - Geralmente contém regras sobre assembleias, administração, sanções, etc.
   - Exemplo: "Art. 15 - As unidades destinam-se exclusivamente para fins residenciais."

c) Regimento Interno (normas de convivência do dia a dia no condomínio):
   - Regras mais específicas sobre uso de áreas comuns, barulho, obras, etc.
   - Exemplo: "Art. 7º - É proibido estacionar nas áreas de circulação da garagem."
   - Exemplo: "Art. 12º - É vedado o trânsito de animais nas áreas comuns do condomínio, salvo autorização especial."

IMPORTANTE: O Art. 10 e seus incisos que falam sobre "É defeso a qualquer condômino" pertencem SEMPRE à Lei de Condomínio nº 4.591/64, NUNCA ao Regimento Interno.`

var advertenciaPromptTemplate = `Elabore APENAS o corpo do texto de uma advertência para o condômino %s, %sda unidade %s, referente à ocorrência de %s: %s

IMPORTANTE: Forneça APENAS o texto principal da advertência que começa com "Prezado Sr./Sra." e termina antes das assinaturas.

O texto deve seguir EXATAMENTE este formato:

1. Iniciar com "Prezado Sr./Sra. [Nome],"
2. Um parágrafo breve informando sobre a ocorrência e que a atividade está sujeita a regulamentação específica
3. Incluir uma linha em branco onde as evidências fotográficas serão inseridas posteriormente
4. ANTES de elaborar o documento, você deve se perguntar: "De qual documento específico estou obtendo este artigo?" Identifique CLARAMENTE a fonte usando as referências a seguir.

` + legalReferencesSection + `

5. Após identificar a fonte correta, cite o artigo completo precedido pela fonte exata
6. Após o artigo, um breve parágrafo sobre as consequências de reincidência
7. Encerrar com "Atenciosamente."

ATENÇÃO - EXTREMAMENTE IMPORTANTE SOBRE A CITAÇÃO DO ARTIGO:
- Você DEVE reproduzir LITERALMENTE o texto do artigo, mantendo EXATAMENTE a mesma numeração, letras, parênteses e formatação do original
- NÃO altere, resuma ou reinterprete o texto do artigo sob hipótese alguma
- Preste especial atenção à numeração dos artigos (Art. 1°, Art. 2°, etc.) e à identificação das alíneas (a-, b-, c-, d-, etc.)
- Verifique duas vezes se está citando o artigo e alínea CORRETOS que se aplicam à infração específica
- NUNCA inclua frases como [VERIFICAR ARTIGO APLICÁVEL] no documento final
- Se não tiver certeza absoluta sobre qual artigo específico aplicar, utilize uma redação mais genérica, como: "De acordo com o Regimento Interno, é vedado o trânsito de animais nas áreas comuns do condomínio, salvo autorização especial, e recomenda-se o uso de coleira e focinheira, quando necessário, para a segurança do animal e dos condôminos."

Siga EXATAMENTE este exemplo de formatação:

"Prezado Sr./Sra. [Nome],

Informamos que foi constatado o uso de furadeira em sua unidade na data [data do ocorrido], o que resultou em incômodo para os demais moradores do condomínio. Essa atividade está sujeita a regulamentação específica.

De acordo com o Regimento Interno, Art. 19º - A troca ou raspagem de pisos, assoalhos, utilização de furadeiras elétricas e demais serviços de obras nos apartamentos que produzam ruídos suscetíveis a incomodar os condôminos, fora do seguinte horário: dias úteis de 2ª à 6ª feira, das 08:00 às 18:00 horas e aos sábados, das 08:00 às 13:00 horas, sendo proibido aos domingos e feriados.

Alertamos que, em caso de reincidência, serão aplicadas sanções, incluindo multas conforme previsto no regulamento interno. Agradecemos a sua compreensão e colaboração para manter um ambiente harmonioso para todos.

Atenciosamente."

IMPORTANTE: NÃO inclua o marcador '[FOTO(S)]' no texto - deixe apenas um espaço em branco onde as fotos seriam inseridas.`

var multaPromptTemplate = `Elabore APENAS o corpo do texto de uma multa no valor de R$ %s para o condômino %s, %sda unidade %s, referente à ocorrência de %s: %s

IMPORTANTE: Forneça APENAS o texto principal da multa que começa com "Prezado Sr./Sra." e termina antes das assinaturas.

O texto deve seguir esta estrutura:

1. Iniciar com "Prezado Sr./Sra. [Nome],"
2. Descrever claramente a infração cometida, incluindo a data e detalhes do ocorrido
3. Incluir uma linha em branco onde as evidências fotográficas serão inseridas posteriormente
4. ANTES de elaborar o documento, você deve se perguntar: "De qual documento específico estou obtendo este artigo?" Identifique CLARAMENTE a fonte usando as referências a seguir.

` + legalReferencesSection + `

5. Após identificar a fonte correta, cite o artigo completo precedido pela fonte exata
6. Informar sobre o valor da multa aplicada e o prazo para pagamento
7. Explicar as consequências em caso de não pagamento
8. Encerrar com uma frase cordial
9. A unidade e o bloco informados identificam a unidade do condômino, mas não devem ser citados no texto.

NÃO inclua cabeçalho, rodapé, espaços para assinatura ou formatação adicional. Forneça SOMENTE o texto principal.

IMPORTANTE: NUNCA inclua frases como [VERIFICAR ARTIGO APLICÁVEL] no documento final. NÃO inclua o marcador '[FOTO(S)]' no texto - deixe apenas um espaço em branco onde as fotos seriam inseridas.`
